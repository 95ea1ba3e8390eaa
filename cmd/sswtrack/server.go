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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sswtrack/sswtrack/internal/api"
	"github.com/sswtrack/sswtrack/internal/auth"
	"github.com/sswtrack/sswtrack/internal/compliance"
	"github.com/sswtrack/sswtrack/internal/config"
	"github.com/sswtrack/sswtrack/internal/notify"
	"github.com/sswtrack/sswtrack/internal/outbox"
	"github.com/sswtrack/sswtrack/internal/ratelimit"
	"github.com/sswtrack/sswtrack/internal/roster"
	"github.com/sswtrack/sswtrack/internal/rules"
	"github.com/sswtrack/sswtrack/internal/storage"
)

const shutdownTimeout = 5 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sswtrack server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running sswtrack server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sswtrack server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "sswtrack.pid")
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
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func openStore(cfg config.Config) (*storage.Store, error) {
	if cfg.Storage.Driver == storage.DriverPostgres {
		return storage.OpenPostgres(cfg.Storage.PostgresDSN)
	}
	return storage.Open(cfg.Storage.DataDir)
}

// newRoster wires the service over an open store.
func newRoster(cfg config.Config, store *storage.Store) (*roster.Service, *rules.Table, error) {
	table, err := rules.Load(cfg.Rules.Path)
	if err != nil {
		return nil, nil, err
	}
	engine := compliance.NewEngine(table, nil)
	svc := roster.New(store, engine, roster.Options{
		AppURL:       cfg.App.URL,
		OwnerAddress: cfg.Email.OwnerAddress,
	})
	return svc, table, nil
}

func newSender(cfg config.Config) notify.Sender {
	sender, err := notify.NewSender(notify.Config{
		ResendAPIKey: cfg.Email.ResendAPIKey,
		FromAddress:  cfg.Email.FromAddress,
		FromName:     cfg.Email.FromName,
		SMTPHost:     cfg.SMTP.Host,
		SMTPPort:     cfg.SMTP.Port,
		SMTPUsername: cfg.SMTP.Username,
		SMTPPassword: cfg.SMTP.Password,
	})
	if errors.Is(err, notify.ErrNotConfigured) {
		slog.Warn("no email provider configured; queued email will fail until one is set")
		return notify.Disabled{}
	}
	if err != nil {
		slog.Warn("email provider unusable", "error", err)
		return notify.Disabled{}
	}
	return sender
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "sswtrack version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	apiToken, err := config.GetAPIToken()
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Check if a server is already answering before taking the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get("http://" + cfg.Server.Addr() + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("sswtrack is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("sswtrack is already running on %s", cfg.Server.Addr())
		return fmt.Errorf("server already running on %s", cfg.Server.Addr())
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()
	slog.Info("storage ready", "driver", store.Driver())

	svc, table, err := newRoster(cfg, store)
	if err != nil {
		return err
	}

	limiter, closeLimiter, err := ratelimit.New(ctx, cfg.Redis.Addr, "sswtrack:feedback:", cfg.RateLimit.FeedbackPerMinute, time.Minute)
	if err != nil {
		return err
	}
	defer closeLimiter()

	handler := api.NewAppHandler(api.AppDeps{
		Roster:          svc,
		Auth:            auth.NewAuthenticator(auth.NewVerifier(cfg.Auth.JWTSecret), store, apiToken),
		Rules:           table,
		FeedbackLimiter: limiter,
		DB:              store,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	worker := outbox.NewWorker(store, newSender(cfg), svc, cfg.Outbox.PollInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "sswtrack listening on %s\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
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
		printError("sswtrack is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop sswtrack (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to sswtrack (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		printError("%v", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.get(ctx, "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on %s", cfg.Server.Addr())
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if running {
		var d compliance.Dashboard
		if resp, err := client.get(ctx, "/dashboard"); err == nil && decodeJSON(resp, &d) == nil {
			printStatus("Active staff", "%d", d.Active)
			printStatus("Open tasks", "%s", taskSummary(d))
		}
	}

	printStatus("Storage", "%s", cfg.Storage.Driver)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	if cfg.Email.ResendAPIKey != "" {
		printStatus("Email", "resend")
	} else if cfg.SMTP.Username != "" && cfg.SMTP.Password != "" {
		printStatus("Email", "smtp %s:%d", cfg.SMTP.Host, cfg.SMTP.Port)
	} else {
		printStatus("Email", "not configured")
	}
	return nil
}

func taskSummary(d compliance.Dashboard) string {
	return fmt.Sprintf("%d critical, %d warning, %d normal", d.Critical, d.Warning, d.Normal)
}
