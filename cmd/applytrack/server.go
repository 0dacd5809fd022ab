package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/applytrack/internal/accounts"
	"github.com/kalambet/applytrack/internal/api"
	"github.com/kalambet/applytrack/internal/config"
	"github.com/kalambet/applytrack/internal/jobs"
	"github.com/kalambet/applytrack/internal/notion"
	"github.com/kalambet/applytrack/internal/posting"
	"github.com/kalambet/applytrack/internal/ratelimit"
	"github.com/kalambet/applytrack/internal/reminder"
	"github.com/kalambet/applytrack/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the applytrack server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running applytrack server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applytrack status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "applytrack.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// resolveSecrets fills the API token and JWT secret from the secrets file
// when the environment did not provide them, creating them on first run.
func resolveSecrets(cfg *config.Config, kc config.Keychain) error {
	var err error
	if cfg.Auth.APIToken == "" {
		if cfg.Auth.APIToken, err = config.GetAPIToken(kc); err != nil {
			return fmt.Errorf("initializing API token: %w", err)
		}
	}
	if cfg.Auth.JWTSecret == "" {
		if cfg.Auth.JWTSecret, err = config.GetJWTSecret(kc); err != nil {
			return fmt.Errorf("initializing JWT secret: %w", err)
		}
	}
	return nil
}

func newLimiter(ctx context.Context, cfg config.Config) (ratelimit.Limiter, func()) {
	if cfg.RateLimit.RedisAddr == "" {
		return ratelimit.NewMemory(), func() {}
	}
	r, err := ratelimit.NewRedis(ctx, cfg.RateLimit.RedisAddr)
	if err != nil {
		slog.Warn("redis unavailable, using in-memory rate limiter", "addr", cfg.RateLimit.RedisAddr, "error", err)
		return ratelimit.NewMemory(), func() {}
	}
	slog.Info("using redis rate limiter", "addr", cfg.RateLimit.RedisAddr)
	return r, func() { r.Close() }
}

func newUserStore(ctx context.Context, cfg config.Config, store *storage.Store) (accounts.UserStore, func(), error) {
	if cfg.Accounts.PostgresURL == "" {
		return store, func() {}, nil
	}
	pg, err := accounts.OpenPostgres(ctx, cfg.Accounts.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("using postgres user store")
	return pg, pg.Close, nil
}

func newNotifier(cfg config.Config) reminder.Notifier {
	notifiers := reminder.MultiNotifier{reminder.LogNotifier{Logger: slog.Default()}}
	if cfg.Notion.Token != "" {
		notifiers = append(notifiers, notion.New(cfg.Notion.Token, cfg.Notion.DatabaseID, &http.Client{Timeout: 15 * time.Second}))
		slog.Info("notion reminder delivery enabled", "database_id", cfg.Notion.DatabaseID)
	}
	return notifiers
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "applytrack version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	if err := resolveSecrets(&cfg, config.NewKeychain()); err != nil {
		return err
	}
	slog.Info("API bearer token available")

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("applytrack is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("applytrack is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	settings := reminder.NewSettingsStore(store, storage.IsNotFound)
	scheduler := reminder.NewScheduler(settings, store)
	svc := jobs.NewService(store, scheduler, jobs.Options{
		DedupWindow: cfg.DedupWindow(),
		Postings:    posting.NewFetcher(&http.Client{Timeout: 15 * time.Second}),
	})
	dispatcher := reminder.NewDispatcher(settings, store, newNotifier(cfg), reminder.DispatcherOptions{
		Interval:  cfg.ReminderInterval(),
		Retention: cfg.ReminderRetention(),
	})

	limiter, closeLimiter := newLimiter(ctx, cfg)
	defer closeLimiter()

	userStore, closeUsers, err := newUserStore(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("opening user store: %w", err)
	}
	defer closeUsers()

	tokens, err := accounts.NewTokens(cfg.Auth.JWTSecret, cfg.TokenTTL())
	if err != nil {
		return fmt.Errorf("configuring session tokens: %w", err)
	}

	handler := api.NewAppHandler(api.AppDeps{
		Jobs:       svc,
		Accounts:   accounts.NewService(userStore, tokens),
		Settings:   settings,
		Reminders:  store,
		Dispatcher: dispatcher,
		Limiter:    limiter,
		AuthLimit:  cfg.RateLimit.AuthLimit,
		Token:      cfg.Auth.APIToken,
		Ping:       store.Ping,

		TrustedProxies: cfg.TrustedProxies(),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	dispatcher.Start(gctx)
	defer dispatcher.Stop()
	slog.Info("reminder dispatcher started", "interval", cfg.ReminderInterval())

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Jobs: svc, Reminders: store})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "applytrack listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("applytrack is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop applytrack (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to applytrack (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if running {
		if c, err := newAPIClient(); err == nil {
			c.httpClient = client
			printCounts(ctx, c)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Reminder interval", "%s", cfg.ReminderInterval())
	if cfg.Notion.Token != "" {
		printStatus("Notion", "database %s", cfg.Notion.DatabaseID)
	}
	if cfg.RateLimit.RedisAddr != "" {
		printStatus("Rate limiter", "redis at %s", cfg.RateLimit.RedisAddr)
	}
	if cfg.Accounts.PostgresURL != "" {
		printStatus("User store", "postgres")
	}
	return nil
}

func printCounts(ctx context.Context, c *apiClient) {
	if resp, err := c.get(ctx, "/board"); err == nil {
		var board []struct {
			Name string `json:"name"`
			Jobs []any  `json:"jobs"`
		}
		if decodeJSON(resp, &board) == nil {
			parts := make([]string, 0, len(board))
			for _, col := range board {
				parts = append(parts, fmt.Sprintf("%s %d", col.Name, len(col.Jobs)))
			}
			printStatus("Board", "%s", strings.Join(parts, ", "))
		}
	}
	if resp, err := c.get(ctx, "/reminders?limit=500"); err == nil {
		var pending []any
		if decodeJSON(resp, &pending) == nil {
			printStatus("Pending reminders", "%d", len(pending))
		}
	}
}
