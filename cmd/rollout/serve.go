package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"rollout/internal/config"
	"rollout/internal/deployment"
	"rollout/internal/security"
	"rollout/internal/server"
	"rollout/internal/webhook"

	"github.com/spf13/cobra"
)

var serveConfigFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the deploy daemon",
	Long: `Start the HTTP server that accepts signed deploy requests.

Settings are read from rollout.yaml (current directory, user config
directory or /etc/rollout), then .env, then ROLLOUT_* environment
variables, then flags. ROLLOUT_SECRET is required.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveConfigFile, "config", "c", os.Getenv("ROLLOUT_CONFIG_FILE"), "Path to rollout.yaml configuration file")
	f.String("host", config.DefaultHost, "Host to bind to")
	f.IntP("port", "p", config.DefaultPort, "Port to listen on")
	f.String("log", "", "Path to log file (stdout only when empty)")
	f.String("log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	f.String("docker", "docker", "Docker command, may include a prefix such as \"sudo docker\"")
	f.Duration("command-timeout", config.DefaultCommandTimeout, "Maximum run time of a docker command, 0 for none")
	f.StringSlice("modes", nil, "Enabled modes (stack, compose)")
	f.Int("rate-limit", 0, "Requests per minute per client IP, 0 to disable")
	f.Bool("trust-proxy", false, "Take the client IP from X-Forwarded-For/X-Real-IP (only behind a trusted proxy)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	cfg, err := config.Load(serveConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := setupLogging(cfg.LogFile, cfg.SlogLevel())
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer closeLog()

	logger.Info("Starting rollout", "version", version, "config", cfg.Path)
	for _, warning := range cfg.Warnings() {
		logger.Warn(warning)
	}

	// Validate has already checked both.
	modes, _ := cfg.ParsedModes()
	dockerCommand, _ := cfg.DockerCommand()

	executor := deployment.NewDockerExecutor(deployment.DockerOptions{
		Command: dockerCommand,
		Timeout: cfg.CommandTimeout,
		Secrets: []string{cfg.Secret},
		Logger:  logger,
	})

	srv := server.NewServer(webhook.NewVerifier(cfg.Secret, webhook.WithModes(modes...)), executor, logger)
	srv.RateLimit = cfg.RateLimit
	srv.TrustProxy = cfg.TrustProxy
	srv.CommandTimeout = cfg.CommandTimeout

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Host, cfg.Port)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", "error", err)
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down, waiting for in-flight deploys")

	timeout := server.ShutdownTimeout + cfg.CommandTimeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

// applyServeFlags overrides cfg with the flags that were set explicitly.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	var err error

	if f.Changed("host") {
		cfg.Host, err = f.GetString("host")
	}
	if err == nil && f.Changed("port") {
		cfg.Port, err = f.GetInt("port")
	}
	if err == nil && f.Changed("log") {
		cfg.LogFile, err = f.GetString("log")
	}
	if err == nil && f.Changed("log-level") {
		cfg.LogLevel, err = f.GetString("log-level")
	}
	if err == nil && f.Changed("docker") {
		cfg.Docker, err = f.GetString("docker")
	}
	if err == nil && f.Changed("command-timeout") {
		cfg.CommandTimeout, err = f.GetDuration("command-timeout")
	}
	if err == nil && f.Changed("modes") {
		cfg.Modes, err = f.GetStringSlice("modes")
	}
	if err == nil && f.Changed("rate-limit") {
		cfg.RateLimit, err = f.GetInt("rate-limit")
	}
	if err == nil && f.Changed("trust-proxy") {
		cfg.TrustProxy, err = f.GetBool("trust-proxy")
	}

	if err != nil {
		return fmt.Errorf("invalid flag: %w", err)
	}
	return nil
}

// setupLogging configures a JSON slog logger writing to stdout and, when
// logPath is set, appending to the log file as well.
// The returned func closes the log file.
func setupLogging(logPath string, level slog.Level) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stdout
	closeFn := func() {}

	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), security.PermDirectory); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, security.PermLogFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}

		// Create multi-writer to log to both file and console
		w = io.MultiWriter(os.Stdout, file)
		closeFn = func() { file.Close() }
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler), closeFn, nil
}
