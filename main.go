package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/hypd-games/hypd-edge/internal/cache"
	"github.com/hypd-games/hypd-edge/internal/command"
	"github.com/hypd-games/hypd-edge/internal/config"
	"github.com/hypd-games/hypd-edge/internal/gateway"
	"github.com/hypd-games/hypd-edge/internal/lifecycle"
	"github.com/hypd-games/hypd-edge/internal/logging"
	"github.com/hypd-games/hypd-edge/internal/routing"
	"github.com/hypd-games/hypd-edge/internal/server"
	"github.com/hypd-games/hypd-edge/internal/server/routes"
	"github.com/hypd-games/hypd-edge/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["origin"] = cfg.Global.Origin
		fields["precache"] = len(cfg.Precache)
		fields["version_set"] = routing.NewVersionSet(cfg.Versions).Names()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	origin, err := url.Parse(cfg.Global.Origin)
	if err != nil {
		fmt.Fprintf(stdErr, "解析源站地址失败: %v\n", err)
		return 1
	}

	// 启动遵循"配置 → 存储 → 路由 → 生命周期 → 命令通道 → Fiber server"顺序，
	// 所有组件共享同一个存储管理器与上游 HTTP 客户端。
	stores, err := cache.NewManager(cfg.Global.StoragePath)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化存储目录失败: %v\n", err)
		return 1
	}

	router, err := routing.NewRouter(cfg, stores, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "构建路由绑定失败: %v\n", err)
		return 1
	}

	httpClient := server.NewUpstreamClient(cfg)
	fetch := server.NewSnapshotFetcher(httpClient, origin)

	gatewayHandler, err := gateway.NewHandler(httpClient, logger, router, origin)
	if err != nil {
		fmt.Fprintf(stdErr, "构建网关失败: %v\n", err)
		return 1
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
		fmt.Fprintf(stdErr, "构建生命周期控制器失败: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 安装失败是致命的：上一代存储保持现役，本代进程直接退出。
	if err := controller.Install(ctx); err != nil {
		fmt.Fprintf(stdErr, "安装阶段失败: %v\n", err)
		return 1
	}
	if err := controller.Activate(ctx); err != nil {
		fmt.Fprintf(stdErr, "激活阶段失败: %v\n", err)
		return 1
	}

	channel, err := command.NewChannel(command.Options{
		Stores:     stores,
		Fetch:      command.Fetcher(fetch),
		Logger:     logger,
		GamesStore: routing.StoreName(routing.PurposeGames, cfg.Versions.Games),
		Buffer:     cfg.Global.CommandBuffer,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建命令通道失败: %v\n", err)
		return 1
	}
	go channel.Run(ctx)

	fields := logging.BaseFields("startup", opts.configPath)
	fields["origin"] = cfg.Global.Origin
	fields["listen_port"] = cfg.Global.ListenPort
	fields["version_set"] = versionSet.Names()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, gatewayHandler, controller, stores, router, channel, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("hypd-edge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 HYPD_EDGE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("HYPD_EDGE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(
	cfg *config.Config,
	gatewayHandler server.GatewayHandler,
	controller *lifecycle.Controller,
	stores cache.Manager,
	router *routing.Router,
	channel *command.Channel,
	logger *logrus.Logger,
) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Gateway:    gatewayHandler,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterStatusRoutes(app, controller, stores, router)
	routes.RegisterCommandRoutes(app, channel, logger)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
