// Package classify maps an incoming request (method + URL path) onto exactly
// one request class. Classification is pure and total; the strategy router
// turns the class into a strategy/store binding.
package classify

import (
	"net/http"
	"path"
	"strings"
)

// Class 是请求的缓存分类，每个请求恰好映射到一个类别。
type Class string

const (
	// Uncacheable 表示调用方必须完全绕过缓存（所有非 GET 请求）。
	Uncacheable Class = "uncacheable"
	// ApiCall 表示 /api 前缀的幂等接口调用。
	ApiCall Class = "api_call"
	// AssetFile 表示游戏静态资源（路径同时含 games 与 assets 段）。
	AssetFile Class = "asset_file"
	// GenericStatic 表示其余的通用静态内容。
	GenericStatic Class = "generic_static"
)

const apiPrefix = "/api/"

// Classify 依据方法与路径给出分类。资源路径优先于 API 前缀判断，
// 因此 /api/games/x/assets/y 仍归为 AssetFile。
func Classify(method, rawPath string) Class {
	if strings.ToUpper(strings.TrimSpace(method)) != http.MethodGet {
		return Uncacheable
	}

	clean := path.Clean("/" + rawPath)

	if hasSegment(clean, "games") && hasSegment(clean, "assets") {
		return AssetFile
	}
	if strings.HasPrefix(clean, apiPrefix) || clean == "/api" {
		return ApiCall
	}
	return GenericStatic
}

// hasSegment 判断路径中是否存在完整的目录段，避免 /gamester 误匹配 games。
func hasSegment(clean, segment string) bool {
	for _, part := range strings.Split(strings.Trim(clean, "/"), "/") {
		if part == segment {
			return true
		}
	}
	return false
}
