package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	aidra "github.com/nevindra/aidra"
	"github.com/nevindra/aidra/httpapi"
	"github.com/nevindra/aidra/internal/config"
	"github.com/nevindra/aidra/memory/sqlite"
	"github.com/nevindra/aidra/provider/resolve"
	storesqlite "github.com/nevindra/aidra/store/sqlite"
	"github.com/nevindra/aidra/tools/file"
	"github.com/nevindra/aidra/tools/web"
	"github.com/nevindra/aidra/webhook"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "aidra",
		Short: "aidra — multi-tenant AI-agent service",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: aidra.toml)")

	root.AddCommand(serveCmd())
	root.AddCommand(createWebhookCmd())
	root.AddCommand(sweepStaleCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func createWebhookCmd() *cobra.Command {
	var agentID, name, workflowName string
	cmd := &cobra.Command{
		Use:   "create-webhook",
		Short: "Register a webhook for an agent and print its secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(cfgFile)
			webhookStore := storesqlite.NewWebhookStore(openSQLiteDB(cfg).DB())
			mgr := webhook.NewManager(webhookStore)
			wh, err := mgr.Create(context.Background(), agentID, name, workflowName)
			if err != nil {
				return err
			}
			fmt.Printf("webhook %s created for agent %s\nsecret: %s\n", wh.ID, wh.AgentID, wh.Secret)
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent ID the webhook belongs to")
	cmd.Flags().StringVar(&name, "name", "", "human-readable webhook name")
	cmd.Flags().StringVar(&workflowName, "workflow", "", "workflow name triggered on delivery")
	cmd.MarkFlagRequired("agent")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("workflow")
	return cmd
}

func sweepStaleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-stale",
		Short: "Mark workflow runs left Running by a crashed process as Failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(cfgFile)
			ws := storesqlite.NewWorkflowStore(openSQLiteDB(cfg).DB())
			n, err := aidra.MarkStaleAsFailed(context.Background(), ws)
			if err != nil {
				return err
			}
			fmt.Printf("marked %d stale run(s) as failed\n", n)
			return nil
		},
	}
}

// sharedBackend wraps msgStore, which is shared across every agent, so
// AgentDeps.Close's Close-interface type assertion does not find one and
// shut the connection every other agent is still using when a single
// agent is evicted or the process shuts down the factory's per-agent deps.
type sharedBackend struct {
	aidra.MessageBackend
}

func openSQLiteDB(cfg config.Config) *storesqlite.Store {
	store := storesqlite.New(cfg.Database.Path)
	if err := store.Init(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "aidra: init store: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runServer() error {
	cfg := config.Load(cfgFile)
	logger := slog.Default()

	llm, err := resolve.LLMAdapter(resolve.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("aidra: resolve LLM adapter: %w", err)
	}

	webAdapter := web.New(cfg.Search.BraveAPIKey)
	fileStore := file.New(cfg.Brain.WorkspacePath)

	msgStore := openSQLiteDB(cfg)
	workflowStore := storesqlite.NewWorkflowStore(msgStore.DB())
	webhookStore := storesqlite.NewWebhookStore(msgStore.DB())

	factory := func(ctx context.Context, agentID string) (aidra.AgentDeps, error) {
		memBackend := sqlite.New(filepath.Join(filepath.Dir(cfg.Database.Path), agentID+"-memory.db"))
		if err := memBackend.Init(ctx); err != nil {
			return aidra.AgentDeps{}, fmt.Errorf("aidra: init agent %s memory: %w", agentID, err)
		}
		memRepo := aidra.NewMemoryRepository(agentID, memBackend)
		if err := memRepo.Load(ctx); err != nil {
			return aidra.AgentDeps{}, fmt.Errorf("aidra: load agent %s memory: %w", agentID, err)
		}
		msgRepo := aidra.NewMessageRepository(agentID, sharedBackend{msgStore})
		if err := msgRepo.Load(ctx); err != nil {
			return aidra.AgentDeps{}, fmt.Errorf("aidra: load agent %s messages: %w", agentID, err)
		}
		return aidra.AgentDeps{Memory: memRepo, Messages: msgRepo, Files: fileStore}, nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	yae, adminToken, err := aidra.Initialize(ctx, aidra.YaeConfig{
		Factory:       factory,
		PoolSize:      aidra.DefaultPoolSize,
		WorkflowStore: workflowStore,
		WebhookStore:  webhookStore,
		LLM:           llm,
		Web:           webAdapter,
		Logger:        logger,
		AdminToken:    cfg.HTTP.AdminToken,
	})
	if err != nil {
		return fmt.Errorf("aidra: initialize: %w", err)
	}
	defer aidra.Shutdown()

	if cfg.HTTP.AdminToken == "" {
		logger.Info("aidra: admin token generated, store securely", "token", adminToken)
	}

	srv := httpapi.New(yae, logger)
	httpServer := &http.Server{Addr: cfg.HTTP.Addr, Handler: srv.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), aidra.LLMTimeout)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("aidra: listening", "addr", cfg.HTTP.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("aidra: serve: %w", err)
	}
	return nil
}
