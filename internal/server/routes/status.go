// Package routes exposes the /-/ diagnostics and command ingress endpoints.
// These paths bypass the interception layer entirely.
package routes

import (
	"context"
	"sort"

	"github.com/gofiber/fiber/v3"

	"github.com/hypd-games/hypd-edge/internal/cache"
	"github.com/hypd-games/hypd-edge/internal/lifecycle"
	"github.com/hypd-games/hypd-edge/internal/routing"
	"github.com/hypd-games/hypd-edge/internal/strategy"
	"github.com/hypd-games/hypd-edge/internal/version"
)

// RegisterStatusRoutes 暴露 /-/status 诊断接口，供运维查询生命周期与存储现状。
func RegisterStatusRoutes(app *fiber.App, controller *lifecycle.Controller, stores cache.Manager, router *routing.Router) {
	if app == nil || controller == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		names, err := stores.StoreNames(context.Background())
		if err != nil {
			names = nil
		}
		sort.Strings(names)

		payload := fiber.Map{
			"version":     version.Full(),
			"state":       controller.State(),
			"version_set": controller.VersionSet().Names(),
			"stores":      names,
			"routes":      encodeRoutes(router),
			"strategies":  strategy.Keys(),
		}
		return c.JSON(payload)
	})
}

type routePayload struct {
	Class    string `json:"class"`
	Strategy string `json:"strategy"`
	Store    string `json:"store"`
}

func encodeRoutes(router *routing.Router) []routePayload {
	list := router.List()
	if len(list) == 0 {
		return nil
	}
	result := make([]routePayload, 0, len(list))
	for _, route := range list {
		result = append(result, routePayload{
			Class:    string(route.Class),
			Strategy: route.Strategy.Key(),
			Store:    route.Store,
		})
	}
	return result
}
