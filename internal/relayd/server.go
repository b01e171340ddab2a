package relayd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relaymesh/relay/internal/relayd/config"
	"github.com/relaymesh/relay/internal/relayd/handler/middleware"
	"github.com/relaymesh/relay/internal/relayd/service/agents"
	"github.com/relaymesh/relay/internal/relayd/service/mcp"
	"github.com/relaymesh/relay/pkg/logger"
)

type apiServer struct {
	cfg    *config.Config
	engine *gin.Engine
	http   *http.Server

	mcpModule    *mcp.Module
	agentsModule *agents.Module
}

type preparedAPIServer struct {
	*apiServer
}

func createAPIServer(cfg *config.Config) (*apiServer, error) {
	// Initialize MCP module (K8S-style: Config → Complete → New).
	mcpFileCfg, err := mcp.LoadMCPConfig(cfg.MCP.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load MCP config from %q: %w", cfg.MCP.ConfigFile, err)
	}
	mcpCfg := &mcp.Config{MCPConfig: mcpFileCfg}
	mcpModule, err := mcpCfg.Complete().New(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP module: %w", err)
	}
	logger.Info("[Relayd] MCP module initialized successfully")

	// Initialize Agents module (K8S-style: Config → Complete → New).
	agentsCfg := &agents.Config{
		FrameworkName:          cfg.Runtime.FrameworkName,
		AppName:                cfg.Runtime.AppName,
		DefaultUserID:          cfg.Runtime.DefaultUserID,
		MaxSessionsPerAgent:    cfg.Runtime.MaxSessionsPerAgent,
		ApprovalTimeoutSeconds: cfg.Approval.TimeoutSeconds,
		ApprovalPolicy:         cfg.Approval.Policy,
		SweepInterval:          cfg.Sweep.Interval,
		SessionIdleTimeout:     cfg.Sweep.SessionIdleTimeout,
		RunnerIdleTimeout:      cfg.Sweep.RunnerIdleTimeout,
		AgentIdleTimeout:       cfg.Sweep.AgentIdleTimeout,
		StoreType:              cfg.Runtime.StoreType,
		BoltDBPath:             cfg.Runtime.BoltDBPath,
	}
	agentsModule, err := agentsCfg.Complete().New(context.Background(), agents.Dependencies{
		GeneratorFactory: newLocalGeneratorFactory(mcpModule.Manager),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Agents module: %w", err)
	}
	logger.Info("[Relayd] Agents module initialized successfully")

	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()

	return &apiServer{
		cfg:          cfg,
		engine:       engine,
		mcpModule:    mcpModule,
		agentsModule: agentsModule,
	}, nil
}

func (s *apiServer) PrepareRun() preparedAPIServer {
	initRouter(s.engine, &routerDeps{
		agentsModule: s.agentsModule,
		authConfig: &middleware.AuthConfig{
			Enabled: s.cfg.Server.AuthToken != "",
			Token:   s.cfg.Server.AuthToken,
		},
	})

	s.http = &http.Server{
		Addr:    s.cfg.Server.Addr,
		Handler: s.engine,
	}

	return preparedAPIServer{s}
}

func (s preparedAPIServer) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s.agentsModule.Sweeper.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[Relayd] serving on %s", s.cfg.Server.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.shutdown()
		return err
	case <-ctx.Done():
	}

	logger.Info("[Relayd] shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		logger.Warn("[Relayd] http shutdown: %v", err)
	}

	s.shutdown()
	return nil
}

// shutdown tears down the modules in reverse init order. Cleanup errors
// are logged, not propagated.
func (s *apiServer) shutdown() {
	if s.agentsModule != nil {
		if err := s.agentsModule.Close(); err != nil {
			logger.Warn("[Relayd] agents module close: %v", err)
		}
	}
	if s.mcpModule != nil {
		if err := s.mcpModule.Close(); err != nil {
			logger.Warn("[Relayd] mcp module close: %v", err)
		}
	}
	logger.FlushLog()
}
