package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，网关所有组件共享同一份参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	Origin          string   `mapstructure:"Origin"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	CommandBuffer   int      `mapstructure:"CommandBuffer"`
}

// VersionsConfig 是构建期注入的存储代次标签，决定 `{purpose}-{version}` 命名
// 以及激活阶段的 VersionSet。
type VersionsConfig struct {
	Primary string `mapstructure:"Primary"`
	Games   string `mapstructure:"Games"`
	Static  string `mapstructure:"Static"`
}

// RoutingConfig 允许按请求类别覆盖默认策略，留空表示使用内置绑定。
type RoutingConfig struct {
	ApiCall       string `mapstructure:"ApiCall"`
	AssetFile     string `mapstructure:"AssetFile"`
	GenericStatic string `mapstructure:"GenericStatic"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global   GlobalConfig   `mapstructure:",squash"`
	Versions VersionsConfig `mapstructure:"Versions"`
	Routing  RoutingConfig  `mapstructure:"Routing"`
	// Precache 是安装阶段预热到 static 存储的根相对路径清单，按声明顺序拉取。
	Precache []string `mapstructure:"Precache"`
}
