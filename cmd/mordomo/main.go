package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/mentxia/mordomo/internal/auth"
	"github.com/mentxia/mordomo/internal/config"
	"github.com/mentxia/mordomo/internal/cron"
	"github.com/mentxia/mordomo/internal/executor"
	"github.com/mentxia/mordomo/internal/gateway"
	"github.com/mentxia/mordomo/internal/hass"
	"github.com/mentxia/mordomo/internal/llm"
	. "github.com/mentxia/mordomo/internal/logging"
	"github.com/mentxia/mordomo/internal/orchestrator"
	"github.com/mentxia/mordomo/internal/session"
)

const version = "0.1.0"

var cli struct {
	Config  string           `short:"c" default:"mordomo.yaml" help:"Path to the configuration file."`
	Listen  string           `help:"Override the HTTP listen address."`
	Debug   bool             `help:"Enable debug logging."`
	Version kong.VersionFlag `help:"Print version and exit."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("mordomo"),
		kong.Description("WhatsApp butler for Home Assistant."),
		kong.Vars{"version": "mordomo " + version},
	)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		Init(&Config{Level: LevelInfo})
		L_fatal("failed to load config: %v", err)
	}
	if cli.Listen != "" {
		cfg.Listen = cli.Listen
	}

	level := ParseLevel(cfg.Log.Level)
	if cli.Debug {
		level = LevelDebug
	}
	Init(&Config{Level: level, ShowCaller: cfg.Log.ShowCaller})

	L_info("mordomo %s starting", version)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		L_fatal("failed to create data dir: %v", err)
	}

	guard := auth.NewGuard(cfg.AllowedList())
	if guard.Len() == 0 {
		L_warn("no allowed numbers configured, every sender will be rejected")
	}

	sessions := session.NewStore(cfg.ContextWindow)

	hassClient, err := hass.NewClient(cfg.HomeAssistant)
	if err != nil {
		L_fatal("home assistant client: %v", err)
	}

	jobStore := cron.NewStore(cron.DefaultJobsPath(cfg.DataDir))
	if err := jobStore.Load(); err != nil {
		L_fatal("failed to load jobs: %v", err)
	}
	cronService := cron.NewService(jobStore)

	exec := executor.New(hassClient, cronService)
	cronService.SetRunner(exec)

	provider, err := llm.FromConfig(cfg.LLM)
	if err != nil {
		L_fatal("llm provider: %v", err)
	}
	L_info("reasoning backend ready", "provider", provider.Name(), "type", provider.Type(), "model", provider.Model())

	gwProvider, err := gateway.New(cfg.Gateway)
	if err != nil {
		L_fatal("gateway: %v", err)
	}
	adapter := gateway.NewAdapter(gwProvider)
	cronService.SetNotifier(adapter)

	orch := orchestrator.New(cfg, guard, sessions, provider, exec, cronService, adapter, hassClient)
	adapter.SetHandler(orch.HandleInbound)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher := hass.NewWatcher(cfg.HomeAssistant, cfg.Alerts, adapter.Send)
	watcher.Start(ctx)

	cronService.Start(ctx)

	server := gateway.NewServer(cfg.Listen, cfg.APIToken, adapter, gateway.Ops{
		ScheduleJob: cronService.Create,
		RemoveJob:   cronService.Cancel,
		JobsReport: func(createdBy string) string {
			return executor.FormatJobs(cronService.List(createdBy))
		},
		CreateAutomation: func(ctx context.Context, spec map[string]any) (string, error) {
			if err := hass.ValidateAutomationSpec(spec); err != nil {
				return "", err
			}
			id := "mordomo_" + uuid.NewString()[:8]
			if err := hassClient.CreateAutomation(ctx, id, spec); err != nil {
				return "", err
			}
			return id, nil
		},
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		L_info("shutting down")
	case err := <-serverErr:
		if err != nil {
			L_error("http server failed: %v", err)
		}
		stop()
	}

	orch.Drain()
	cronService.Stop()
	watcher.Stop()
	L_info("mordomo stopped")
}
