package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/sidekick-bot/sidekick/internal/access"
	"github.com/sidekick-bot/sidekick/internal/agent"
	"github.com/sidekick-bot/sidekick/internal/config"
	"github.com/sidekick-bot/sidekick/internal/executor"
	"github.com/sidekick-bot/sidekick/internal/gateway"
	"github.com/sidekick-bot/sidekick/internal/github"
	"github.com/sidekick-bot/sidekick/internal/job"
	"github.com/sidekick-bot/sidekick/internal/logging"
	"github.com/sidekick-bot/sidekick/internal/report"
	"github.com/sidekick-bot/sidekick/internal/router"
	"github.com/sidekick-bot/sidekick/internal/slack"
)

func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = config.DefaultConfigPath()
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := logging.Init(cfg.Logging); err != nil {
				return fmt.Errorf("initializing logging: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logging.WithComponent("main")

	gh := github.NewClient(cfg.GitHub.Token)

	store, err := job.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening job store: %w", err)
	}
	defer store.Close()
	registry := job.NewRegistry(store)

	// Rate limiting only runs when a counter store is configured; without
	// one the access controller skips the gate.
	var counter *access.Counter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		counter = access.NewCounter(rdb)
	} else {
		log.Warn("no redis address configured, rate limiting disabled")
	}
	controller := access.NewController(
		cfg.Access.AllowedRepos,
		cfg.Access.RequireOrgMembership,
		cfg.Access.RateLimit,
		gh,
		counter,
	)

	// The agent service is probed once; a negative probe pins routing to
	// local execution for the process lifetime.
	var monitor *agent.Monitor
	agentAvailable := false
	if cfg.Agent.URL != "" {
		client := agent.NewClient(cfg.Agent.URL, cfg.Agent.Token)
		agentAvailable = client.Probe(ctx)
		if agentAvailable {
			monitor = agent.NewMonitor(client)
			if cfg.Agent.PollInterval > 0 {
				monitor.SetPollInterval(cfg.Agent.PollInterval)
			}
			if cfg.Agent.Deadline > 0 {
				monitor.SetDeadline(cfg.Agent.Deadline)
			}
		} else {
			log.Warn("agent service unreachable, falling back to local execution")
		}
	}

	local := executor.New(gh, cfg.Executor.Local, cfg.GitHub.Token)
	if !local.EngineAvailable() {
		log.Warn("local engine not found in PATH, local jobs will fail")
	}

	var notifier *slack.Notifier
	if cfg.Slack != nil && cfg.Slack.Enabled {
		notifier = slack.NewNotifier(cfg.Slack)
	}
	reporter := report.New(gh, notifier)

	opts := gateway.Options{
		BotName:       cfg.GitHub.BotName,
		WebhookSecret: cfg.GitHub.WebhookSecret,
		Access:        controller,
		Router:        router.New(router.Mode(cfg.Executor.Mode), agentAvailable),
		Local:         local,
		Registry:      registry,
		Reporter:      reporter,
	}
	if monitor != nil {
		opts.Agent = monitor
	}
	gw := gateway.New(opts)

	// Terminal jobs are kept for a retention window, then swept so the
	// registry and store stay bounded.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@hourly", func() {
		registry.Prune(cfg.Store.Retention)
	}); err != nil {
		return fmt.Errorf("scheduling prune sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	server := gateway.NewServer(cfg.Server, gw)
	return server.Start(ctx)
}
