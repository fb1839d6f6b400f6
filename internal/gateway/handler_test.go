package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/hypd-games/hypd-edge/internal/cache"
	"github.com/hypd-games/hypd-edge/internal/config"
	"github.com/hypd-games/hypd-edge/internal/routing"
	"github.com/hypd-games/hypd-edge/internal/server"
)

func TestAssetFileServedFromCacheAfterUpstreamOutage(t *testing.T) {
	stub := newOriginStub()
	upstream := httptest.NewServer(stub)

	app, _ := newGatewayApp(t, upstream.URL)

	resp := doGatewayRequest(t, app, "GET", "/games/abc/assets/sprite.png")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 on first fetch, got %d", resp.StatusCode)
	}
	if hit := resp.Header.Get("X-Hypd-Cache"); hit != "miss" {
		t.Fatalf("expected cache miss on first fetch, got %s", hit)
	}
	if store := resp.Header.Get("X-Hypd-Store"); store != "games-cache-v1" {
		t.Fatalf("expected games-cache-v1 store header, got %s", store)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "sprite-bytes" {
		t.Fatalf("unexpected body on first fetch: %s", string(body))
	}

	// Origin goes away entirely; the asset must replay from the store.
	upstream.Close()

	resp2 := doGatewayRequest(t, app, "GET", "/games/abc/assets/sprite.png")
	if resp2.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 offline replay, got %d", resp2.StatusCode)
	}
	if hit := resp2.Header.Get("X-Hypd-Cache"); hit != "hit" {
		t.Fatalf("expected cache hit offline, got %s", hit)
	}
	body2, _ := io.ReadAll(resp2.Body)
	resp2.Body.Close()
	if string(body2) != "sprite-bytes" {
		t.Fatalf("offline replay body mismatch: %s", string(body2))
	}

	if got := stub.count("/games/abc/assets/sprite.png"); got != 1 {
		t.Fatalf("expected a single upstream fetch, got %d", got)
	}
}

func TestApiCallAlwaysPrefersUpstream(t *testing.T) {
	stub := newOriginStub()
	upstream := httptest.NewServer(stub)

	app, _ := newGatewayApp(t, upstream.URL)

	for i := 0; i < 2; i++ {
		resp := doGatewayRequest(t, app, "GET", "/api/categories")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
		if hit := resp.Header.Get("X-Hypd-Cache"); hit != "miss" {
			t.Fatalf("request %d: network-first should refetch, got %s", i, hit)
		}
		resp.Body.Close()
	}
	if got := stub.count("/api/categories"); got != 2 {
		t.Fatalf("expected two upstream fetches, got %d", got)
	}

	upstream.Close()

	resp := doGatewayRequest(t, app, "GET", "/api/categories")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected cached fallback 200, got %d", resp.StatusCode)
	}
	if hit := resp.Header.Get("X-Hypd-Cache"); hit != "hit" {
		t.Fatalf("expected fallback cache hit, got %s", hit)
	}
	resp.Body.Close()
}

func TestNonGetPassesThroughWithoutTouchingStores(t *testing.T) {
	stub := newOriginStub()
	upstream := httptest.NewServer(stub)
	defer upstream.Close()

	app, stores := newGatewayApp(t, upstream.URL)

	req := httptest.NewRequest("POST", "http://edge.local/api/games/abc/play", strings.NewReader(`{"move":1}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 passthrough, got %d", resp.StatusCode)
	}
	if mode := resp.Header.Get("X-Hypd-Cache"); mode != "bypass" {
		t.Fatalf("expected bypass marker, got %s", mode)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != `echo:{"move":1}` {
		t.Fatalf("unexpected passthrough body: %s", string(body))
	}

	names, err := stores.StoreNames(context.Background())
	if err != nil {
		t.Fatalf("StoreNames failed: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("passthrough must not create stores, found %v", names)
	}
}

func TestUpstreamFailureWithoutCacheReturns502(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	app, _ := newGatewayApp(t, deadURL)

	resp := doGatewayRequest(t, app, "GET", "/api/games/abc/meta")
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "upstream_failed") {
		t.Fatalf("expected upstream_failed error body, got %s", string(body))
	}
}

func TestQueryStringsKeyDistinctEntries(t *testing.T) {
	stub := newOriginStub()
	upstream := httptest.NewServer(stub)
	defer upstream.Close()

	app, _ := newGatewayApp(t, upstream.URL)

	first := doGatewayRequest(t, app, "GET", "/games/abc/assets/tile.bin?page=1")
	first.Body.Close()
	second := doGatewayRequest(t, app, "GET", "/games/abc/assets/tile.bin?page=2")
	second.Body.Close()

	if hit := second.Header.Get("X-Hypd-Cache"); hit != "miss" {
		t.Fatalf("distinct query must miss, got %s", hit)
	}
	if got := stub.count("/games/abc/assets/tile.bin"); got != 2 {
		t.Fatalf("expected two upstream fetches for distinct queries, got %d", got)
	}
}

func doGatewayRequest(t *testing.T, app *fiber.App, method, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, "http://edge.local"+path, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	return resp
}

func newGatewayApp(t *testing.T, upstreamURL string) (*fiber.App, cache.Manager) {
	t.Helper()

	cfg := &config.Config{
		Global: config.GlobalConfig{
			ListenPort:      5000,
			StoragePath:     t.TempDir(),
			Origin:          upstreamURL,
			UpstreamTimeout: config.Duration(5 * time.Second),
		},
		Versions: config.VersionsConfig{Primary: "v1", Games: "v1", Static: "v1"},
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	stores, err := cache.NewManager(cfg.Global.StoragePath)
	if err != nil {
		t.Fatalf("store manager error: %v", err)
	}

	router, err := routing.NewRouter(cfg, stores, logger)
	if err != nil {
		t.Fatalf("router error: %v", err)
	}

	origin, err := url.Parse(upstreamURL)
	if err != nil {
		t.Fatalf("origin parse error: %v", err)
	}

	handler, err := NewHandler(server.NewUpstreamClient(cfg), logger, router, origin)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Gateway:    handler,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}
	return app, stores
}

type originStub struct {
	mu   sync.Mutex
	hits map[string]int
}

func newOriginStub() *originStub {
	return &originStub{hits: map[string]int{}}
}

func (s *originStub) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *originStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.mu.Unlock()

	if r.Method == http.MethodPost {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(append([]byte("echo:"), body...))
		return
	}

	switch {
	case strings.Contains(r.URL.Path, "/assets/"):
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.WriteString(w, "sprite-bytes")
	case strings.HasPrefix(r.URL.Path, "/api/"):
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"categories":["arcade"]}`)
	default:
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>hypd</html>")
	}
}
