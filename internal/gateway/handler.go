// Package gateway implements the interception surface: every outbound request
// from the web client enters Handle, gets classified, and is resolved by the
// routed strategy against the store manager, or streamed straight to the
// origin when no cache involvement is allowed.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/hypd-games/hypd-edge/internal/cache"
	"github.com/hypd-games/hypd-edge/internal/classify"
	"github.com/hypd-games/hypd-edge/internal/logging"
	"github.com/hypd-games/hypd-edge/internal/routing"
	"github.com/hypd-games/hypd-edge/internal/server"
	"github.com/hypd-games/hypd-edge/internal/strategy"
)

// Handler 负责 orchestrate "分类 → 选路 → 策略裁决 → 回写响应" 的全流程，
// 对外暴露 Fiber handler，内部复用共享 http.Client 与存储管理器。
type Handler struct {
	client *http.Client
	logger *logrus.Logger
	router *routing.Router
	origin *url.URL
}

// NewHandler constructs a gateway handler with shared HTTP client/logger/router.
func NewHandler(client *http.Client, logger *logrus.Logger, router *routing.Router, origin *url.URL) (*Handler, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if router == nil {
		return nil, errors.New("router is required")
	}
	if origin == nil {
		return nil, errors.New("origin url is required")
	}
	return &Handler{
		client: client,
		logger: logger,
		router: router,
		origin: origin,
	}, nil
}

// Handle 执行分类与策略裁决，任何阶段出错都会输出结构化日志。
// Uncacheable 请求完全绕过缓存，不读不写任何存储。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)
	method := c.Method()
	cleanPath := normalizeRequestPath(string(c.Request().URI().Path()))
	rawQuery := string(c.Request().URI().QueryString())

	class := classify.Classify(method, cleanPath)
	route, ok := h.router.Lookup(class)
	if !ok {
		return h.passthrough(c, class, requestID, started)
	}

	keyURL := cleanPath
	if rawQuery != "" {
		keyURL = keyURL + "?" + rawQuery
	}
	key := cache.NewKey(method, keyURL)

	// 提前复制方法/URL/头部为纯值：后台刷新会在本次请求结束后才执行，
	// 不能再触碰可能被复用的请求上下文。
	header := requestHeaderSnapshot(c)
	fetch := h.snapshotFetch(method, keyURL, header)

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	entry, err := route.Strategy.Resolve(ctx, strategy.Request{
		Store: route.Store,
		Key:   key,
		Fetch: fetch,
	})
	if err != nil {
		h.logResult(class, &route, requestID, 0, false, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}

	// 抓取产出的快照以抓取时刻为戳，早于请求开始的必然来自缓存。
	cacheHit := entry.StoredAt.Before(started)
	if err := h.writeEntry(c, &route, entry, requestID, cacheHit); err != nil {
		h.logResult(class, &route, requestID, entry.Status, cacheHit, started, err)
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("write response failed: %v", err))
	}
	h.logResult(class, &route, requestID, entry.Status, cacheHit, started, nil)
	return nil
}

// snapshotFetch 构造实时抓取闭包，只捕获纯值，随处可安全调用。
func (h *Handler) snapshotFetch(method, keyURL string, header http.Header) strategy.FetchFunc {
	return func(ctx context.Context) (*cache.Entry, error) {
		relative, err := url.Parse(keyURL)
		if err != nil {
			return nil, err
		}
		target := h.origin.ResolveReference(relative)

		req, err := http.NewRequestWithContext(ctx, method, target.String(), http.NoBody)
		if err != nil {
			return nil, err
		}
		server.CopyHeaders(req.Header, header)
		req.Header.Del("Accept-Encoding")
		req.Host = target.Host
		req.Header.Set("Host", target.Host)

		return server.DoSnapshot(h.client, req)
	}
}

// passthrough 将请求原样转发上游并流式返回，全程不读写任何存储。
func (h *Handler) passthrough(c fiber.Ctx, class classify.Class, requestID string, started time.Time) error {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	uri := c.Request().URI()
	relative := &url.URL{
		Path:     normalizeRequestPath(string(uri.Path())),
		RawQuery: string(uri.QueryString()),
	}
	target := h.origin.ResolveReference(relative)

	req, err := http.NewRequestWithContext(ctx, c.Method(), target.String(), bytesReader(c.Body()))
	if err != nil {
		h.logPassthrough(class, requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	server.CopyHeaders(req.Header, requestHeaderSnapshot(c))
	req.Host = target.Host
	req.Header.Set("Host", target.Host)

	resp, err := h.client.Do(req)
	if err != nil {
		h.logPassthrough(class, requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	c.Set("X-Hypd-Cache", "bypass")
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)

	_, copyErr := io.Copy(c.Response().BodyWriter(), resp.Body)
	h.logPassthrough(class, requestID, resp.StatusCode, started, copyErr)
	if copyErr != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", copyErr))
	}
	return nil
}

func (h *Handler) writeEntry(c fiber.Ctx, route *routing.Route, entry *cache.Entry, requestID string, cacheHit bool) error {
	copyResponseHeaders(c, entry.Header)

	c.Response().Header.SetContentLength(len(entry.Body))
	c.Set("X-Hypd-Cache", hitLabel(cacheHit))
	c.Set("X-Hypd-Store", route.Store)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(entry.Status)

	_, err := io.Copy(c.Response().BodyWriter(), bytes.NewReader(entry.Body))
	return err
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	class classify.Class,
	route *routing.Route,
	requestID string,
	status int,
	cacheHit bool,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(string(class), route.Strategy.Key(), route.Store, cacheHit)
	fields["action"] = "gateway"
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("gateway_failed")
		return
	}
	h.logger.WithFields(fields).Info("gateway_complete")
}

func (h *Handler) logPassthrough(class classify.Class, requestID string, status int, started time.Time, err error) {
	fields := logging.RequestFields(string(class), "", "", false)
	fields["action"] = "passthrough"
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("passthrough_failed")
		return
	}
	h.logger.WithFields(fields).Info("passthrough_complete")
}

func hitLabel(cacheHit bool) string {
	if cacheHit {
		return "hit"
	}
	return "miss"
}

func normalizeRequestPath(raw string) string {
	if raw == "" {
		raw = "/"
	}
	return path.Clean("/" + raw)
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}

// requestHeaderSnapshot 将 fasthttp 头部复制为标准 http.Header 纯值。
func requestHeaderSnapshot(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	header.Del("Host")
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}
