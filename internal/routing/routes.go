// Package routing binds request classes to a retrieval strategy and a target
// store name, and derives the VersionSet of store generations considered
// current for the running build. Activation treats any store outside the
// VersionSet as garbage.
package routing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hypd-games/hypd-edge/internal/cache"
	"github.com/hypd-games/hypd-edge/internal/classify"
	"github.com/hypd-games/hypd-edge/internal/config"
	"github.com/hypd-games/hypd-edge/internal/strategy"
)

// 存储用途常量，存储名遵循 `{purpose}-{version}`。
const (
	PurposePrimary = "hypd"
	PurposeGames   = "games-cache"
	PurposeStatic  = "static"
)

// StoreName 拼接用途与版本标签，例如 StoreName(PurposeStatic, "v2") = "static-v2"。
func StoreName(purpose, version string) string {
	return purpose + "-" + version
}

// VersionSet 是当前构建认定为"现役"的存储名集合，激活阶段据此回收旧代次。
type VersionSet map[string]struct{}

// NewVersionSet 根据配置的版本标签推导现役存储名集合。
func NewVersionSet(v config.VersionsConfig) VersionSet {
	return VersionSet{
		StoreName(PurposePrimary, v.Primary): {},
		StoreName(PurposeGames, v.Games):     {},
		StoreName(PurposeStatic, v.Static):   {},
	}
}

// Contains 报告存储名是否属于现役集合。
func (s VersionSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Names 返回排序后的现役存储名，便于日志与诊断输出稳定。
func (s VersionSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Route 将分类结果与派生属性（策略实例、目标存储名）聚合在一起，
// 供网关层直接复用，避免每个请求重复解析配置。
type Route struct {
	Class    classify.Class
	Strategy strategy.Strategy
	Store    string
}

// Router 提供分类 → Route 的查询能力。Uncacheable 没有路由，调用方必须透传。
type Router struct {
	routes map[classify.Class]Route
}

// NewRouter 根据配置构建类别绑定。调用方应在启动阶段创建一次并复用。
// 配置可按类别覆盖策略键，存储绑定固定由类别决定。
func NewRouter(cfg *config.Config, stores cache.Manager, logger *logrus.Logger) (*Router, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	bindings := []struct {
		class      classify.Class
		defaultKey string
		override   string
		store      string
	}{
		{classify.ApiCall, strategy.KeyNetworkFirst, cfg.Routing.ApiCall, StoreName(PurposePrimary, cfg.Versions.Primary)},
		{classify.AssetFile, strategy.KeyCacheFirst, cfg.Routing.AssetFile, StoreName(PurposeGames, cfg.Versions.Games)},
		{classify.GenericStatic, strategy.KeyStaleWhileRevalidate, cfg.Routing.GenericStatic, StoreName(PurposeStatic, cfg.Versions.Static)},
	}

	router := &Router{routes: make(map[classify.Class]Route, len(bindings))}
	for _, binding := range bindings {
		key := binding.defaultKey
		if override := strings.TrimSpace(binding.override); override != "" {
			key = override
		}
		impl, ok := strategy.New(key, stores, logger)
		if !ok {
			return nil, fmt.Errorf("strategy %s is not registered", key)
		}
		router.routes[binding.class] = Route{
			Class:    binding.class,
			Strategy: impl,
			Store:    binding.store,
		}
	}
	return router, nil
}

// Lookup 返回类别对应的路由；Uncacheable（或未知类别）返回 false。
func (r *Router) Lookup(class classify.Class) (Route, bool) {
	if r == nil {
		return Route{}, false
	}
	route, ok := r.routes[class]
	return route, ok
}

// List 返回全部绑定（按类别名排序），用于 /-/status 输出。
func (r *Router) List() []Route {
	if r == nil || len(r.routes) == 0 {
		return nil
	}
	result := make([]Route, 0, len(r.routes))
	for _, route := range r.routes {
		result = append(result, route)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Class < result[j].Class
	})
	return result
}
