package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hypd-games/hypd-edge/internal/strategy"
)

// Validate 校验配置整体合法性，返回首个发现的 FieldError。
func (c *Config) Validate() error {
	if c.Global.ListenPort <= 0 || c.Global.ListenPort > 65535 {
		return newFieldError("ListenPort", fmt.Sprintf("端口必须位于 1-65535，当前为 %d", c.Global.ListenPort))
	}
	if strings.TrimSpace(c.Global.StoragePath) == "" {
		return newFieldError("StoragePath", "缓存目录不能为空")
	}
	if err := validateOrigin(c.Global.Origin); err != nil {
		return err
	}
	if err := validateVersions(c.Versions); err != nil {
		return err
	}
	if err := validateRouting(c.Routing); err != nil {
		return err
	}
	return validatePrecache(c.Precache)
}

// validateOrigin 要求 Origin 是带 Host 的 http/https 地址，分类器只处理这两种协议。
func validateOrigin(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return newFieldError("Origin", "上游地址不能为空")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return newFieldError("Origin", fmt.Sprintf("无法解析上游地址: %v", err))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return newFieldError("Origin", fmt.Sprintf("仅支持 http/https，当前为 %q", parsed.Scheme))
	}
	if parsed.Host == "" {
		return newFieldError("Origin", "上游地址缺少 Host")
	}
	return nil
}

func validateVersions(v VersionsConfig) error {
	entries := []struct {
		field string
		value string
	}{
		{"Primary", v.Primary},
		{"Games", v.Games},
		{"Static", v.Static},
	}
	for _, entry := range entries {
		if err := validateVersionTag(entry.field, entry.value); err != nil {
			return err
		}
	}
	return nil
}

// validateVersionTag 限制版本标签为小写字母/数字/点，保证存储名 `{purpose}-{version}`
// 可以被无歧义地拆分。
func validateVersionTag(field, value string) error {
	if value == "" {
		return newFieldError(versionField(field), "版本标签不能为空")
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '.':
		default:
			return newFieldError(versionField(field), fmt.Sprintf("版本标签含非法字符 %q", r))
		}
	}
	return nil
}

func validateRouting(r RoutingConfig) error {
	entries := []struct {
		field string
		value string
	}{
		{"ApiCall", r.ApiCall},
		{"AssetFile", r.AssetFile},
		{"GenericStatic", r.GenericStatic},
	}
	for _, entry := range entries {
		key := strings.TrimSpace(entry.value)
		if key == "" {
			continue
		}
		if !strategy.Known(key) {
			return newFieldError(routingField(entry.field), fmt.Sprintf("未注册的策略 %q，可选: %s", key, strings.Join(strategy.Keys(), "|")))
		}
	}
	return nil
}

func validatePrecache(paths []string) error {
	for idx, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return newFieldError(fmt.Sprintf("Precache[%d]", idx), fmt.Sprintf("预热路径必须以 / 开头，当前为 %q", p))
		}
	}
	return nil
}
