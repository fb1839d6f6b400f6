package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"path"
	"strings"
)

// Key 是一次请求的完整缓存身份：方法 + 规范化后的 URL。
// 同一存储内同一 Key 任意时刻至多存在一个 Entry。
type Key struct {
	Method string
	URL    string
}

// NewKey 规范化方法与 URL，保证等价请求产生相同的 Key。
// 路径经过 path.Clean，查询串原样保留（顺序即身份的一部分）。
func NewKey(method, rawURL string) Key {
	method = strings.ToUpper(strings.TrimSpace(method))

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Key{Method: method, URL: rawURL}
	}

	clean := path.Clean("/" + parsed.Path)
	if parsed.RawQuery != "" {
		clean = clean + "?" + parsed.RawQuery
	}
	return Key{Method: method, URL: clean}
}

// Canonical 返回键的规范字符串形式，用于日志与元数据落盘。
func (k Key) Canonical() string {
	return k.Method + " " + k.URL
}

// digest 将规范形式散列为定长文件名，避免路径字符与长度问题。
func (k Key) digest() string {
	sum := sha1.Sum([]byte(k.Canonical()))
	return hex.EncodeToString(sum[:])
}
