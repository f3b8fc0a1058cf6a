// Command server runs the antigravity-gateway HTTP process: it loads
// configuration, wires the credential pool and translators, and serves
// the OpenAI, Gemini, and Claude surfaces until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/antigravity-gateway/gateway/internal/config"
	"github.com/antigravity-gateway/gateway/internal/credential"
	"github.com/antigravity-gateway/gateway/internal/gateway"
	"github.com/antigravity-gateway/gateway/internal/logging"
	"github.com/antigravity-gateway/gateway/internal/memory"
	"github.com/antigravity-gateway/gateway/internal/oauthclient"
	"github.com/antigravity-gateway/gateway/internal/pool"
	"github.com/antigravity-gateway/gateway/internal/quota"
	"github.com/antigravity-gateway/gateway/internal/resilience"
	"github.com/antigravity-gateway/gateway/internal/signature"
	"github.com/antigravity-gateway/gateway/internal/telemetry"
	"github.com/antigravity-gateway/gateway/internal/upstream"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "antigravity-gateway",
		Short: "Multi-protocol LLM gateway in front of the antigravity upstream",
		RunE:  run,
	}
	root.Flags().StringVar(&configPath, "config", "", "path to config.yaml (defaults to $XDG_CONFIG_HOME/antigravity-gateway/config.yaml)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = defaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(logging.Config{
		Level:    cfg.LogLevel,
		FilePath: cfg.LogFilePath,
		JSON:     false,
	})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	credStore, err := credential.NewStore(filepath.Join(cfg.DataDir, "credentials.json"))
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}

	oauth := oauthclient.New(cfg, log)
	rotator := pool.New(credStore, oauth, oauth, log, cfg)

	quotaCache := quota.New(filepath.Join(cfg.DataDir, "quota.json"))
	quotaCache.Start()
	defer quotaCache.Stop()

	sigCache := signature.New()

	regulator := memory.New(cfg.MemoryHighMB, log)
	regulator.Subscribe(quotaCache)
	regulator.Subscribe(sigCache)
	regulator.Start()
	defer regulator.Stop()

	upstreamClient := upstream.New(log)
	retrier := resilience.NewRetrier(resilience.DefaultRetryConfig)

	metrics := telemetry.New()
	breakers := resilience.NewBreakerRegistry(func(credentialID string) {
		metrics.BreakerOpenTotal.WithLabelValues(logging.RedactCredential(credentialID)).Inc()
	})

	heartbeat := gateway.NewHeartbeat()
	defer heartbeat.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sampler := telemetry.NewSampler(metrics, 5*time.Second,
		func() telemetry.MemorySnapshot {
			snap := regulator.Snapshot()
			return telemetry.MemorySnapshot{
				Tier:        tierRank(snap.Tier),
				HeapBytes:   snap.HeapBytes,
				PeakHeap:    snap.PeakHeap,
				CleanupRuns: snap.CleanupRuns,
			}
		},
		func() telemetry.PoolSnapshot {
			creds := credStore.List()
			disabled := 0
			for _, c := range creds {
				if !c.Enable {
					disabled++
				}
			}
			return telemetry.PoolSnapshot{
				Total:    len(creds),
				Disabled: disabled,
				Index:    rotator.CurrentIndex(),
			}
		},
	)
	go sampler.Run(ctx)

	watcher, err := config.WatchRotationStrategy(cfg, func(strategy config.RotationStrategy, requestCount int) {
		rotator.UpdateRotationConfig(strategy, requestCount)
		log.Info("rotation strategy reloaded", "strategy", strategy, "request_count_per_token", requestCount)
	})
	if err != nil {
		log.Warn("rotation strategy watch disabled", "error", err)
	}
	if watcher != nil {
		defer watcher.Close()
	}

	srv := gateway.New(&gateway.Deps{
		Config:     cfg,
		Log:        log,
		Rotator:    rotator,
		Upstream:   upstreamClient,
		Quota:      quotaCache,
		Signatures: sigCache,
		Memory:     regulator,
		Retrier:    retrier,
		Breakers:   breakers,
		Heartbeat:  heartbeat,
		Metrics:    metrics,
	})

	log.Info("starting antigravity-gateway", "port", cfg.Port)
	addr := fmt.Sprintf(":%d", cfg.Port)
	if err := srv.Run(ctx, addr); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func tierRank(tier string) int {
	switch tier {
	case "MEDIUM":
		return 1
	case "HIGH":
		return 2
	case "CRITICAL":
		return 3
	default:
		return 0
	}
}

func defaultConfigPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "antigravity-gateway", "config.yaml")
}
