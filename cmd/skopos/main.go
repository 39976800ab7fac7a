package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mtzanidakis/skopos/internal/agent"
	"github.com/mtzanidakis/skopos/internal/config"
	"github.com/mtzanidakis/skopos/internal/jobs"
	"github.com/mtzanidakis/skopos/internal/natsbus"
	"github.com/mtzanidakis/skopos/internal/scheduler"
	"github.com/mtzanidakis/skopos/internal/store"
	"github.com/mtzanidakis/skopos/internal/swarm"
	"github.com/mtzanidakis/skopos/internal/telegram"
	"github.com/mtzanidakis/skopos/internal/vault"
	"github.com/mtzanidakis/skopos/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("skopos %s\n", version)
	case "gateway":
		if err := runGateway(); err != nil {
			slog.Error("gateway failed", "error", err)
			os.Exit(1)
		}
	case "backup":
		if err := runBackup(os.Args[2:]); err != nil {
			slog.Error("backup failed", "error", err)
			os.Exit(1)
		}
	case "restore":
		if err := runRestore(os.Args[2:]); err != nil {
			slog.Error("restore failed", "error", err)
			os.Exit(1)
		}
	case "vault":
		if err := runVault(os.Args[2:]); err != nil {
			slog.Error("vault command failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: skopos <command>\n\nCommands:\n  gateway    Start the skopos gateway service\n  backup     Archive the data directory to a .tar.zst file\n  restore    Restore a backup archive into the data directory\n  vault      Manage stored site credentials\n  version    Print version\n")
}

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting skopos gateway", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", cfg.NATS.Port)

	client, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer client.Close()

	// Credential vault
	var v *vault.Vault
	if pass := os.Getenv("SKOPOS_VAULT_PASSPHRASE"); pass != "" {
		v = vault.New(pass)
	} else {
		slog.Warn("vault passphrase not set, stored site credentials disabled")
	}

	// Page fetcher, with stored credentials for protected sites
	fetcher := agent.NewHTTPFetcher(cfg.Analysis.FetchTimeout, cfg.Analysis.UserAgent)
	if v != nil {
		fetcher.SetCredentials(&storeCredentials{store: db, vault: v})
	}

	// Analysis service
	svc := swarm.NewService(db, client, fetcher, swarm.ServiceOptions{
		MaxCompetitors: cfg.Analysis.MaxCompetitors,
		Language:       cfg.Analysis.Language,
	})

	// Telegram bot
	bot, err := telegram.New(cfg.Telegram, svc)
	if err != nil {
		return fmt.Errorf("init telegram bot: %w", err)
	}
	if bot != nil {
		go bot.Start(ctx)
		slog.Info("telegram bot started")
	} else {
		slog.Warn("telegram token not set, bot disabled")
	}

	// Scheduler for recurring scans
	var notifier scheduler.Notifier
	if bot != nil {
		notifier = bot
	}
	sched := scheduler.New(db, svc, client, cfg.Scheduler, notifier)
	go sched.Start(ctx)

	// Batch job workers
	runner := jobs.New(db, svc, cfg.Jobs)
	go runner.Start(ctx)
	slog.Info("job workers started", "workers", cfg.Jobs.Workers)

	// Web API
	if cfg.Web.Enabled {
		srv := web.NewServer(db, bus, svc, runner, sched, v, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
	}

	// Wait for shutdown or reload signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for {
		sig := <-sigCh
		if sig == syscall.SIGHUP {
			cfg = reloadConfig(cfg, svc, sched, bot)
			continue
		}
		slog.Info("shutting down", "signal", sig)
		cancel()
		return nil
	}
}

// reloadConfig re-reads the config file and applies what can change at
// runtime. Returns the config now in effect.
func reloadConfig(old *config.Config, svc *swarm.Service, sched *scheduler.Scheduler, bot *telegram.Bot) *config.Config {
	next, err := config.Load()
	if err != nil {
		slog.Error("config reload failed", "error", err)
		return old
	}

	d := config.Diff(old, next)
	for _, field := range d.NonReloadable {
		slog.Warn("config change requires restart", "field", field)
	}
	if !d.HasChanges() {
		slog.Info("config reloaded, no runtime changes")
		return next
	}

	if d.AnalysisChanged {
		svc.UpdateOptions(swarm.ServiceOptions{
			MaxCompetitors: d.NewAnalysis.MaxCompetitors,
			Language:       d.NewAnalysis.Language,
		})
		slog.Info("analysis limits reloaded",
			"max_competitors", d.NewAnalysis.MaxCompetitors, "language", d.NewAnalysis.Language)
	}
	if d.SchedulerChanged {
		sched.UpdateConfig(d.NewScheduler.PollInterval)
	}
	if d.TelegramChanged && bot != nil {
		bot.UpdateConfig(d.NewAllowFrom, d.NewNotifyChat)
		slog.Info("telegram access list reloaded", "allowed", len(d.NewAllowFrom))
	}
	return next
}

// storeCredentials resolves site credentials from the secrets table,
// decrypting passwords with the vault.
type storeCredentials struct {
	store *store.Store
	vault *vault.Vault
}

func (c *storeCredentials) Lookup(host string) (username, password string, ok bool) {
	sec, err := c.store.GetSecretByHost(host)
	if err != nil || sec == nil {
		return "", "", false
	}
	plain, err := c.vault.Decrypt(sec.Value, sec.Nonce, sec.Host)
	if err != nil {
		slog.Error("credential decrypt failed", "host", host, "error", err)
		return "", "", false
	}
	return sec.Username, string(plain), true
}
