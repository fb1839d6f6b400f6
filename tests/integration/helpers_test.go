package integration

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/hypd-games/hypd-edge/internal/cache"
	"github.com/hypd-games/hypd-edge/internal/command"
	"github.com/hypd-games/hypd-edge/internal/config"
	"github.com/hypd-games/hypd-edge/internal/gateway"
	"github.com/hypd-games/hypd-edge/internal/lifecycle"
	"github.com/hypd-games/hypd-edge/internal/routing"
	"github.com/hypd-games/hypd-edge/internal/server"
	"github.com/hypd-games/hypd-edge/internal/server/routes"
)

// edgeStack wires the full gateway the same way main does: stores, router,
// gateway handler, lifecycle controller, command channel and the Fiber app.
type edgeStack struct {
	app        *fiber.App
	stores     cache.Manager
	controller *lifecycle.Controller
	channel    *command.Channel
	cfg        *config.Config
}

func defaultStackConfig(t *testing.T, originURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Global: config.GlobalConfig{
			ListenPort:      5000,
			StoragePath:     t.TempDir(),
			Origin:          originURL,
			UpstreamTimeout: config.Duration(5 * time.Second),
			CommandBuffer:   8,
		},
		Versions: config.VersionsConfig{Primary: "v1", Games: "v1", Static: "v1"},
		Precache: []string{"/", "/index.html"},
	}
}

func newEdgeStack(t *testing.T, cfg *config.Config) *edgeStack {
	t.Helper()

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

	origin, err := url.Parse(cfg.Global.Origin)
	if err != nil {
		t.Fatalf("origin parse error: %v", err)
	}

	client := server.NewUpstreamClient(cfg)
	fetch := server.NewSnapshotFetcher(client, origin)

	handler, err := gateway.NewHandler(client, logger, router, origin)
	if err != nil {
		t.Fatalf("gateway error: %v", err)
	}

	versionSet := routing.NewVersionSet(cfg.Versions)
	controller, err := lifecycle.NewController(lifecycle.Options{
		Stores:      stores,
		Fetch:       fetch,
		Logger:      logger,
		Manifest:    cfg.Precache,
		Versions:    versionSet,
		StaticStore: routing.StoreName(routing.PurposeStatic, cfg.Versions.Static),
	})
	if err != nil {
		t.Fatalf("controller error: %v", err)
	}

	channel, err := command.NewChannel(command.Options{
		Stores:     stores,
		Fetch:      command.Fetcher(fetch),
		Logger:     logger,
		GamesStore: routing.StoreName(routing.PurposeGames, cfg.Versions.Games),
		Buffer:     cfg.Global.CommandBuffer,
	})
	if err != nil {
		t.Fatalf("channel error: %v", err)
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Gateway:    handler,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}
	routes.RegisterStatusRoutes(app, controller, stores, router)
	routes.RegisterCommandRoutes(app, channel, logger)

	return &edgeStack{
		app:        app,
		stores:     stores,
		controller: controller,
		channel:    channel,
		cfg:        cfg,
	}
}

func (s *edgeStack) get(t *testing.T, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest("GET", "http://edge.local"+path, nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body error: %v", err)
	}
	resp.Body.Close()
	return string(body)
}

// hypdOriginStub emulates the game platform origin with mutable payloads and
// per-path hit counting.
type hypdOriginStub struct {
	mu     sync.Mutex
	hits   map[string]int
	bodies map[string]string
	status map[string]int
}

func newHypdOriginStub() *hypdOriginStub {
	return &hypdOriginStub{
		hits: map[string]int{},
		bodies: map[string]string{
			"/":              "<html>shell</html>",
			"/index.html":    "<html>shell</html>",
			"/manifest.json": `{"name":"hypd"}`,
		},
		status: map[string]int{},
	}
}

func (s *hypdOriginStub) set(path, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[path] = body
}

func (s *hypdOriginStub) setStatus(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[path] = status
}

func (s *hypdOriginStub) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *hypdOriginStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	body, known := s.bodies[r.URL.Path]
	status := s.status[r.URL.Path]
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !known {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_, _ = io.WriteString(w, body)
}
