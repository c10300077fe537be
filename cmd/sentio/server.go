package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kalambet/sentio/internal/api"
	"github.com/kalambet/sentio/internal/config"
	"github.com/kalambet/sentio/internal/logging"
	"github.com/kalambet/sentio/internal/provider"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and provider status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

// startup loads config, builds the logger and the app for the long-running
// commands.
func startup(ctx context.Context) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Provider.Backend == "ollama" || cfg.Provider.Embedder == "ollama" {
		ollama := provider.NewOllama(provider.OllamaConfig{
			BaseURL:    cfg.Ollama.BaseURL,
			ChatModel:  cfg.Ollama.ChatModel,
			EmbedModel: cfg.Ollama.EmbedModel,
		})
		if err := ollama.EnsureReady(ctx, os.Stderr); err != nil {
			logger.Sync()
			return nil, nil, err
		}
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, nil, err
	}
	cleanup := func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing app", zap.Error(err))
		}
		logger.Sync()
	}
	return a, cleanup, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "sentio version %s\n", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := startup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	handler := api.NewHandler(api.Deps{
		Service: a.pipeline,
		Logger:  a.logger.Named("http"),
		Token:   a.cfg.Server.APIToken,
	})

	addr := net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("sentio listening",
			zap.String("addr", addr),
			zap.String("provider", a.cfg.Provider.Backend),
			zap.String("embedder", a.cfg.Provider.Embedder),
			zap.String("vector_backend", a.cfg.Vector.Backend),
			zap.String("index_state", a.index.State().String()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := startup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	stdio := server.NewStdioServer(api.NewMCPServer(a.pipeline, version))
	a.logger.Info("MCP server started (stdio transport)")
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := "http://" + net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var health struct {
			Messages   int    `json:"messages"`
			IndexState string `json:"indexState"`
			IndexMode  string `json:"indexMode"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&health)
		resp.Body.Close()
		switch {
		case resp.StatusCode != http.StatusOK:
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		case decodeErr != nil:
			printStatus("Server", "running on %s", serverURL)
		default:
			printStatus("Server", "running on %s", serverURL)
			printStatus("Messages", "%d", health.Messages)
			printStatus("Vector index", "%s (%s)", stateLabel(health.IndexState), health.IndexMode)
		}
	}

	printStatus("Provider", "%s", cfg.Provider.Backend)
	printStatus("Embedder", "%s", cfg.Provider.Embedder)
	if cfg.Provider.Backend == "ollama" || cfg.Provider.Embedder == "ollama" {
		ollama := provider.NewOllama(provider.OllamaConfig{BaseURL: cfg.Ollama.BaseURL})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if ollama.IsRunning(ctx) {
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		} else {
			printStatus("Ollama", "not running")
		}
	}
	if cfg.Provider.Backend == "openai" || cfg.Provider.Embedder == "openai" {
		if err := cfg.RequireCredentials(); err != nil {
			printWarning("OpenAI API key missing (set SENTIO_OPENAI_API_KEY)")
		}
	}
	printStatus("Vector backend", "%s", cfg.Vector.Backend)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func stateLabel(state string) string {
	if state == "AVAILABLE" {
		return colorize(colorGreen, state)
	}
	return colorize(colorYellow, state)
}
