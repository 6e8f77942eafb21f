// Command openintentd runs the OpenIntent agent runtime: the multi-task
// router, the self-development worker, the credential vault, the retention
// sweeper, and the Telegram channel, all over one SQLite store.
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/openintentos/openintent/internal/bus"
	"github.com/openintentos/openintent/internal/channels"
	"github.com/openintentos/openintent/internal/config"
	"github.com/openintentos/openintent/internal/devworker"
	"github.com/openintentos/openintent/internal/llm"
	"github.com/openintentos/openintent/internal/memory"
	otelPkg "github.com/openintentos/openintent/internal/otel"
	"github.com/openintentos/openintent/internal/retention"
	"github.com/openintentos/openintent/internal/router"
	"github.com/openintentos/openintent/internal/store"
	"github.com/openintentos/openintent/internal/telemetry"
	"github.com/openintentos/openintent/internal/tools"
	"github.com/openintentos/openintent/internal/vault"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

DAEMON MODE (default):
  %s                          Start the runtime daemon

SUBCOMMANDS:
  %s run <message>            Run one message through the task router and exit
  %s version                  Print the version

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  OPENINTENT_HOME         Data directory (default: ~/.openintent)
  OPENINTENT_API_KEY      Primary model API key
  OPENINTENT_VAULT_KEY    Base64 or hex encoded 32-byte vault master key
  DEEPSEEK_API_KEY        Key for the medium routing tier
  GEMINI_API_KEY          Key for the light routing tier
  TELEGRAM_BOT_TOKEN      Telegram channel token
`)
}

func main() {
	loadDotEnv(".env")

	quiet := flag.Bool("quiet", false, "log to file only, keep stdout clean")
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	oneShot := ""
	if args := flag.Args(); len(args) > 0 {
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "help", "-h", "--help":
			printUsage()
			return
		case "version":
			fmt.Println(Version)
			return
		case "run":
			if len(args) < 2 {
				fmt.Fprintln(os.Stderr, "usage: openintentd run <message>")
				os.Exit(2)
			}
			oneShot = strings.Join(args[1:], " ")
			*quiet = true
		default:
			fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
			os.Exit(2)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, *quiet)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "home", cfg.HomeDir)

	otelExporter := "stdout"
	if cfg.Otel.Endpoint != "" {
		otelExporter = "otlp-http"
	}
	otelProvider, err := otelPkg.Init(ctx, otelPkg.Config{
		Enabled:  cfg.Otel.Enabled,
		Exporter: otelExporter,
		Endpoint: cfg.Otel.Endpoint,
	})
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(context.Background())

	eventBus := bus.New()

	st, err := store.Open(cfg.DBPath, eventBus, logger)
	if err != nil {
		fatalStartup(logger, "E_STORE_OPEN", err)
	}
	defer st.Close()
	logger.Info("startup phase", "phase", "schema_migrated", "db", cfg.DBPath)

	if raw := cfg.VaultKey(); raw != "" {
		key, err := decodeVaultKey(raw)
		if err != nil {
			fatalStartup(logger, "E_VAULT_KEY", err)
		}
		if _, err := vault.New(st.DB(), key, logger); err != nil {
			fatalStartup(logger, "E_VAULT_INIT", err)
		}
		logger.Info("startup phase", "phase", "vault_unlocked")
	} else {
		logger.Warn("vault master key not set; credential vault disabled", "env", cfg.VaultKeyEnv)
	}

	client, err := llm.NewClient(llm.Config{
		Family:  llm.Family(cfg.LLM.Family),
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		APIKey:  cfg.PrimaryAPIKey(),
	}, logger)
	if err != nil {
		fatalStartup(logger, "E_LLM_INIT", err)
	}

	registry := buildRegistry(cfg, st, logger)

	keys := router.Keys{Gemini: cfg.GeminiAPIKey(), DeepSeek: cfg.DeepSeekAPIKey()}
	rt := router.New(client, registry, st, keys, eventBus, logger)

	if oneShot != "" {
		runOnce(ctx, rt, oneShot)
		return
	}

	var worker *devworker.Worker
	if cfg.DevWorker.Enabled {
		worker = devworker.New(st, client, registry, devworker.Config{
			RepoPath:     cfg.DevWorker.RepoPath,
			MainBranch:   cfg.DevWorker.MainBranch,
			FormatCmd:    cfg.DevWorker.FormatCmd,
			LintCmd:      cfg.DevWorker.LintCmd,
			TestCmd:      cfg.DevWorker.TestCmd,
			MaxRetries:   cfg.DevWorker.MaxRetries,
			PollInterval: time.Duration(cfg.DevWorker.PollIntervalSeconds) * time.Second,
		}, eventBus, logger)
		if err := worker.Start(ctx); err != nil {
			fatalStartup(logger, "E_DEVWORKER_START", err)
		}
		defer worker.Stop()
	}

	sweeper, err := retention.NewSweeper(st, llmSummarizer(client), retention.Config{
		Schedule:         cfg.Retention.Schedule,
		EpisodeTTL:       time.Duration(cfg.Retention.EpisodeTTLDays) * 24 * time.Hour,
		CompactThreshold: cfg.Retention.CompactThreshold,
		KeepRecent:       cfg.Retention.KeepRecent,
	}, logger)
	if err != nil {
		fatalStartup(logger, "E_RETENTION_INIT", err)
	}
	sweeper.Start(ctx)
	defer sweeper.Stop()

	if cfg.Telegram.Enabled {
		token := cfg.TelegramToken()
		if token == "" {
			fatalStartup(logger, "E_TELEGRAM_TOKEN", fmt.Errorf("telegram enabled but no token configured"))
		}
		ch := channels.NewTelegramChannel(token, cfg.Telegram.AllowedIDs, rt, worker, eventBus, logger)
		go func() {
			if err := ch.Start(ctx); err != nil {
				logger.Error("telegram channel stopped", "error", err)
			}
		}()
	}

	watchConfig(ctx, cfg, client, logger)

	logger.Info("startup phase", "phase", "runtime_ready", "version", Version)
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Deferred stops drain the worker and sweeper before the store closes.
	logger.Info("shutdown complete")
}

// buildRegistry assembles the tool registry: shell in the workspace, semantic
// memory, and GitHub when a token is present.
func buildRegistry(cfg config.Config, st *store.Store, logger *slog.Logger) *tools.Registry {
	registry := tools.NewRegistry(logger)

	workspace := filepath.Join(cfg.HomeDir, "workspace")
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		fatalStartup(logger, "E_WORKSPACE_CREATE", err)
	}
	if err := registry.Register(tools.NewShellAdapter(workspace)); err != nil {
		fatalStartup(logger, "E_TOOL_REGISTER", err)
	}

	// Global manager for the save/search tools; per-task episodic recording
	// happens through the agent's own manager.
	mem := memory.NewManager(st, "", logger)
	if err := registry.Register(tools.NewMemoryAdapter(mem)); err != nil {
		fatalStartup(logger, "E_TOOL_REGISTER", err)
	}

	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		if err := registry.Register(tools.NewGitHubAdapter(token, "")); err != nil {
			fatalStartup(logger, "E_TOOL_REGISTER", err)
		}
	} else {
		logger.Warn("GITHUB_TOKEN not set; pull request tools unavailable")
	}

	return registry
}

// runOnce routes a single message and prints the results.
func runOnce(ctx context.Context, rt *router.Router, message string) {
	outcomes, err := rt.RunMulti(ctx, message, router.Options{
		Emit: func(chunk string) { fmt.Println(chunk) },
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(os.Stderr, "task %d failed: %v\n", o.Index, o.Err)
		}
	}
}

// llmSummarizer compacts session history through the cheap path of the
// configured model.
func llmSummarizer(client *llm.Client) retention.Summarizer {
	return func(ctx context.Context, messages []store.SessionMessage) (string, error) {
		var b strings.Builder
		b.WriteString("Summarize this conversation in a compact paragraph, keeping decisions, facts, and open items:\n\n")
		for _, m := range messages {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
			if b.Len() > 24000 {
				break
			}
		}
		resp, err := client.Chat(ctx, llm.Request{
			Messages:  []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
			MaxTokens: 1024,
		})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	}
}

// watchConfig reloads config.yaml on change and rebinds the primary model
// when the reloadable settings differ.
func watchConfig(ctx context.Context, cfg config.Config, client *llm.Client, logger *slog.Logger) {
	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
		return
	}
	go func() {
		current := cfg.Fingerprint()
		for range watcher.Events() {
			next, err := config.LoadFrom(cfg.HomeDir)
			if err != nil {
				logger.Warn("config reload failed", "error", err)
				continue
			}
			fp := next.Fingerprint()
			if fp == current {
				continue
			}
			current = fp
			if err := client.Rebind(llm.Config{
				Family:  llm.Family(next.LLM.Family),
				BaseURL: next.LLM.BaseURL,
				Model:   next.LLM.Model,
				APIKey:  next.PrimaryAPIKey(),
			}); err != nil {
				logger.Warn("config reload rejected", "error", err)
				continue
			}
			logger.Info("config reloaded", "model", next.LLM.Model, "family", next.LLM.Family)
		}
	}()
}

// decodeVaultKey accepts a base64 (std or raw) or hex encoded 32-byte key.
func decodeVaultKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	for _, decode := range []func(string) ([]byte, error){
		base64.StdEncoding.DecodeString,
		base64.RawStdEncoding.DecodeString,
		hex.DecodeString,
	} {
		if key, err := decode(raw); err == nil {
			if len(key) != vault.KeySize {
				return nil, fmt.Errorf("vault key must decode to %d bytes, got %d", vault.KeySize, len(key))
			}
			return key, nil
		}
	}
	return nil, fmt.Errorf("vault key is neither valid base64 nor hex")
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"runtime","trace_id":"-","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}

// loadDotEnv loads KEY=VALUE pairs from a local .env file without overriding
// variables already set in the environment.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, val)
	}
}
