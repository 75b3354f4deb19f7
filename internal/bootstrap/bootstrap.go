package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"cuishou-server-go/internal/app/services"
	"cuishou-server-go/internal/domain/customer"
	"cuishou-server-go/internal/domain/history"
	llmopenai "cuishou-server-go/internal/domain/llm/infrastructure/openai"
	llminter "cuishou-server-go/internal/domain/llm/inter"
	ttsedge "cuishou-server-go/internal/domain/tts/infrastructure/edge"
	ttsinter "cuishou-server-go/internal/domain/tts/inter"
	platformconfig "cuishou-server-go/internal/platform/config"
	platformerrors "cuishou-server-go/internal/platform/errors"
	platformlogging "cuishou-server-go/internal/platform/logging"
	platformobservability "cuishou-server-go/internal/platform/observability"
	httptransport "cuishou-server-go/internal/transport/http"
	httpwebapi "cuishou-server-go/internal/transport/http/webapi"
	"cuishou-server-go/internal/transport/ws"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config                *platformconfig.Config
	logger                *platformlogging.Logger
	slogger               *slog.Logger
	observabilityShutdown platformobservability.ShutdownFunc

	customers    *customer.Store
	historyStore history.Store
	llmProvider  llminter.Provider
	ttsProvider  ttsinter.Provider
}

// Run 启动整个服务生命周期：加载配置、初始化依赖、优雅关停
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	if shutdown := state.observabilityShutdown; shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WarnTag("引导", "可观测性未正常关闭: %v", err)
			}
		}()
	}

	defer func() {
		if state.historyStore != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := state.historyStore.Close(closeCtx); err != nil {
				logger.WarnTag("引导", "通话记录存储未正常关闭: %v", err)
			}
			cancel()
		}
		if state.customers != nil {
			if err := state.customers.Close(); err != nil {
				logger.WarnTag("引导", "客户存储未正常关闭: %v", err)
			}
		}
		if state.llmProvider != nil {
			_ = state.llmProvider.Close()
		}
		if state.ttsProvider != nil {
			_ = state.ttsProvider.Close()
		}
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag("引导", "服务已全部关闭")
	logger.Close()
	return nil
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("引导", "初始化依赖关系概览")

	stepNames := map[string]string{
		"config:load":               "加载配置",
		"logging:init-provider":     "初始化日志提供者",
		"observability:setup-hooks": "设置可观测性钩子",
		"storage:init-customers":    "初始化客户档案库",
		"storage:init-history":      "初始化通话记录存储",
		"providers:init":            "初始化模型提供方",
	}

	for _, step := range steps {
		if name, ok := stepNames[step.ID]; ok {
			logger.InfoTag("引导", name)
		}
	}
	logger.InfoTag("引导", "启动服务")
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph 返回初始化步骤的依赖图
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:init-customers",
			Title:     "Initialise customer store",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initCustomerStoreStep,
		},
		{
			ID:        "storage:init-history",
			Title:     "Initialise call history store",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initHistoryStoreStep,
		},
		{
			ID:        "providers:init",
			Title:     "Initialise model providers",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initProvidersStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	config, err := platformconfig.NewLoader().Load()
	if err != nil {
		return err
	}
	state.config = config
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(&platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logger = logger
	state.slogger = logger.Slog()
	platformlogging.DefaultLogger = logger

	logger.InfoTag("引导", "日志模块就绪 [%s]", state.config.Log.Level)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"config/logger not initialised",
		)
	}

	cfg := platformobservability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, state.slogger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func initCustomerStoreStep(_ context.Context, state *appState) error {
	store, err := customer.NewStore(customer.Config{
		DSN:  state.config.Customer.DSN,
		Seed: state.config.Customer.Seed,
	}, state.logger)
	if err != nil {
		return err
	}
	state.customers = store
	return nil
}

func initHistoryStoreStep(_ context.Context, state *appState) error {
	cfg := history.Config{
		Driver:     state.config.History.Type,
		MaxEntries: state.config.Turn.MaxHistory,
	}
	switch cfg.Driver {
	case history.DriverRedis:
		cfg.Redis = &history.RedisConfig{
			Addr:     state.config.History.Redis.Addr,
			Username: state.config.History.Redis.Username,
			Password: state.config.History.Redis.Password,
			DB:       state.config.History.Redis.DB,
			Prefix:   state.config.History.Redis.Prefix,
		}
	case history.DriverSQLite:
		cfg.SQLite = &history.SQLiteConfig{
			DSN: state.config.History.SQLite.DSN,
		}
	}

	store, err := history.New(cfg, history.Dependencies{})
	if err != nil {
		return err
	}
	state.historyStore = store
	state.logger.InfoTag("引导", "通话记录存储就绪 [%s]", state.config.History.Type)
	return nil
}

func initProvidersStep(_ context.Context, state *appState) error {
	llmProvider, err := llmopenai.NewProvider(llminter.Config{
		Type:        state.config.LLM.Type,
		ModelName:   state.config.LLM.ModelName,
		BaseURL:     state.config.LLM.BaseURL,
		APIKey:      state.config.LLM.APIKey,
		Temperature: state.config.LLM.Temperature,
		MaxTokens:   state.config.LLM.MaxTokens,
		TopP:        state.config.LLM.TopP,
	}, state.logger)
	if err != nil {
		return err
	}
	state.llmProvider = llmProvider

	ttsProvider, err := ttsedge.NewProvider(ttsinter.Config{
		Type:       state.config.TTS.Type,
		Voice:      state.config.TTS.Voice,
		OutputDir:  state.config.TTS.OutputDir,
		SampleRate: state.config.TTS.SampleRate,
		DeleteFile: state.config.TTS.DeleteFile,
	}, state.logger)
	if err != nil {
		return err
	}
	state.ttsProvider = ttsProvider

	state.logger.InfoTag("引导", "模型提供方就绪 LLM=%s TTS=%s",
		state.config.LLM.ModelName, state.config.TTS.Voice)
	return nil
}

func startWebSocketServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*ws.Server, error) {
	config := state.config
	logger := state.logger

	hub := ws.NewHub(logger)
	router := ws.NewRouter(hub, logger, ws.RouterOptions{
		AuthEnabled: config.Server.Auth.Enabled,
		AuthSecret:  config.Server.Auth.Secret,
	})

	addr := fmt.Sprintf("%s:%d", config.Transport.WebSocket.IP, config.Transport.WebSocket.Port)
	server := ws.NewServer(ws.ServerConfig{
		Addr: addr,
		Path: "/ws",
	}, router, hub, logger)

	server.SetServiceBuilder(func(sessionID string, sender services.Sender) (*services.ConnectionService, error) {
		return services.NewConnectionService(&services.ConnectionConfig{
			Config:       config,
			Logger:       logger,
			Sender:       sender,
			SessionID:    sessionID,
			Customers:    state.customers,
			HistoryStore: state.historyStore,
			LLMProvider:  state.llmProvider,
			TTSProvider:  state.ttsProvider,
		})
	})

	g.Go(func() error {
		if err := server.Start(groupCtx); err != nil {
			if groupCtx.Err() != nil {
				return nil
			}
			logger.ErrorTag("传输", "WebSocket服务运行失败: %v", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.InfoTag("传输", "收到关闭信号，正在关闭WebSocket服务")
		if err := server.Stop(); err != nil {
			logger.ErrorTag("传输", "关闭WebSocket服务失败: %v", err)
		} else {
			logger.InfoTag("传输", "WebSocket服务已优雅关闭")
		}
		return nil
	})

	return server, nil
}

func startHTTPServer(state *appState, wsServer *ws.Server, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	config := state.config
	logger := state.logger

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config:     config,
		Logger:     logger,
		StaticRoot: config.Web.StaticDir,
	})
	if err != nil {
		return nil, err
	}
	router := httpRouter.Engine
	apiGroup := httpRouter.API

	router.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api") {
			c.JSON(http.StatusNotFound, httptransport.APIResponse{
				Success: false,
				Data:    gin.H{},
				Message: "api Not found",
				Code:    http.StatusNotFound,
			})
			return
		}

		c.File(config.Web.StaticDir + "/index.html")
	})

	webapiService, err := httpwebapi.NewService(config, state.customers, wsServer.Count, logger)
	if err != nil {
		logger.ErrorTag("HTTP", "WebAPI服务初始化失败: %v", err)
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "webapi:new-service", "failed to create webapi service", err)
	}

	if err := webapiService.Register(groupCtx, apiGroup); err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(config.Web.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "Gin服务已启动，访问地址 http://localhost:%d", config.Web.Port)
		logger.InfoTag("HTTP", "WebSocket入口: %s", config.Web.Websocket)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "HTTP服务关闭失败: %v", err)
			} else {
				logger.InfoTag("HTTP", "HTTP服务已优雅关闭")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "HTTP服务启动失败: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("引导", "收到系统信号 %v，正在进行资源清理", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("引导", "服务关闭过程中出现错误: %v", err)
			return err
		}
		logger.InfoTag("引导", "所有服务已成功关闭")
	case <-time.After(15 * time.Second):
		timeoutErr := errors.New("服务关闭超时")
		logger.ErrorTag("引导", "服务关闭超时，已强制退出")
		return timeoutErr
	}
	return nil
}

func startServices(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	wsServer, err := startWebSocketServer(state, g, groupCtx)
	if err != nil {
		return fmt.Errorf("启动WebSocket服务失败: %w", err)
	}

	if state.config.Web.Enabled {
		if _, err := startHTTPServer(state, wsServer, g, groupCtx); err != nil {
			return fmt.Errorf("启动HTTP服务失败: %w", err)
		}
	}

	return nil
}
