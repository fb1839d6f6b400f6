package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/hypd-games/hypd-edge/internal/cache"
	"github.com/hypd-games/hypd-edge/internal/routing"
)

func TestInstallPrewarmsStaticStore(t *testing.T) {
	stores := newTestStores(t)
	manifest := []string{"/", "/index.html", "/manifest.json"}
	c := newTestController(t, stores, manifest, mapFetcher(map[string]string{
		"/":              "<html>shell</html>",
		"/index.html":    "<html>shell</html>",
		"/manifest.json": `{"name":"hypd"}`,
	}))

	if err := c.Install(context.Background()); err != nil {
		t.Fatalf("install error: %v", err)
	}
	if c.State() != StateWaiting {
		t.Fatalf("安装成功后应进入 Waiting，当前 %s", c.State())
	}

	for _, path := range manifest {
		entry, err := stores.Get(context.Background(), "static-v1", cache.NewKey("GET", path))
		if err != nil {
			t.Fatalf("预热条目 %s 缺失: %v", path, err)
		}
		if len(entry.Body) == 0 {
			t.Fatalf("预热条目 %s 正文为空", path)
		}
	}
}

func TestInstallFailsFastOnFetchError(t *testing.T) {
	stores := newTestStores(t)
	c := newTestController(t, stores, []string{"/", "/broken.js"}, func(ctx context.Context, path string) (*cache.Entry, error) {
		if path == "/broken.js" {
			return nil, errors.New("dial tcp: connection refused")
		}
		return &cache.Entry{Status: http.StatusOK, Body: []byte("ok")}, nil
	})

	err := c.Install(context.Background())
	if !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("expected ErrInstallFailed, got %v", err)
	}
	if c.State() != StateInstalling {
		t.Fatalf("安装失败后状态不应推进，当前 %s", c.State())
	}
	if activateErr := c.Activate(context.Background()); activateErr == nil {
		t.Fatal("安装失败后不应允许激活")
	}
}

func TestInstallFailsFastOnErrorStatus(t *testing.T) {
	stores := newTestStores(t)
	c := newTestController(t, stores, []string{"/gone.css"}, func(ctx context.Context, path string) (*cache.Entry, error) {
		return &cache.Entry{Status: http.StatusNotFound, Body: []byte("not found")}, nil
	})

	if err := c.Install(context.Background()); !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("非 2xx 预热响应应导致安装失败, got %v", err)
	}
}

func TestInstallRunsOncePerBuild(t *testing.T) {
	stores := newTestStores(t)
	c := newTestController(t, stores, nil, mapFetcher(nil))

	if err := c.Install(context.Background()); err != nil {
		t.Fatalf("install error: %v", err)
	}
	if err := c.Install(context.Background()); err == nil {
		t.Fatal("重复安装应返回非法转换错误")
	}
}

func TestActivateDeletesStoresOutsideVersionSet(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	for _, name := range []string{"static-v1", "static-v2", "games-cache-v1", "old-temp"} {
		if err := stores.Open(ctx, name); err != nil {
			t.Fatalf("open %s error: %v", name, err)
		}
	}

	versions := routing.VersionSet{"static-v2": {}, "games-cache-v1": {}}
	c, err := NewController(Options{
		Stores:      stores,
		Fetch:       mapFetcher(nil),
		Logger:      discardLogger(),
		Versions:    versions,
		StaticStore: "static-v2",
	})
	if err != nil {
		t.Fatalf("controller error: %v", err)
	}

	if err := c.Install(ctx); err != nil {
		t.Fatalf("install error: %v", err)
	}
	if err := c.Activate(ctx); err != nil {
		t.Fatalf("activate error: %v", err)
	}
	if c.State() != StateActive {
		t.Fatalf("激活后状态应为 Active，当前 %s", c.State())
	}

	names, err := stores.StoreNames(ctx)
	if err != nil {
		t.Fatalf("store names error: %v", err)
	}
	sort.Strings(names)
	expected := []string{"games-cache-v1", "static-v2"}
	if fmt.Sprint(names) != fmt.Sprint(expected) {
		t.Fatalf("激活应恰好删除 static-v1 与 old-temp，剩余 %v", names)
	}
}

func TestSupersedeTransitions(t *testing.T) {
	stores := newTestStores(t)
	c := newTestController(t, stores, nil, mapFetcher(nil))

	if err := c.Supersede(); err == nil {
		t.Fatal("Active 之前不应允许 Supersede")
	}

	ctx := context.Background()
	if err := c.Install(ctx); err != nil {
		t.Fatalf("install error: %v", err)
	}
	if err := c.Activate(ctx); err != nil {
		t.Fatalf("activate error: %v", err)
	}
	if err := c.Supersede(); err != nil {
		t.Fatalf("supersede error: %v", err)
	}
	if c.State() != StateSuperseded {
		t.Fatalf("状态应为 Superseded，当前 %s", c.State())
	}
}

// ---- helpers ----

func newTestStores(t *testing.T) cache.Manager {
	t.Helper()
	stores, err := cache.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return stores
}

func newTestController(t *testing.T, stores cache.Manager, manifest []string, fetch Fetcher) *Controller {
	t.Helper()
	c, err := NewController(Options{
		Stores:      stores,
		Fetch:       fetch,
		Logger:      discardLogger(),
		Manifest:    manifest,
		Versions:    routing.VersionSet{"static-v1": {}, "games-cache-v1": {}, "hypd-v1": {}},
		StaticStore: "static-v1",
	})
	if err != nil {
		t.Fatalf("controller error: %v", err)
	}
	return c
}

func mapFetcher(pages map[string]string) Fetcher {
	return func(ctx context.Context, path string) (*cache.Entry, error) {
		body, ok := pages[path]
		if !ok {
			body = "placeholder"
		}
		return &cache.Entry{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": []string{"text/html"}},
			Body:   []byte(body),
		}, nil
	}
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
