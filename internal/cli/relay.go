package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iskrim46/ogurec/internal/api"
	"github.com/iskrim46/ogurec/internal/config"
	"github.com/iskrim46/ogurec/internal/db"
	"github.com/iskrim46/ogurec/internal/events"
	"github.com/iskrim46/ogurec/internal/health"
	"github.com/iskrim46/ogurec/internal/relay"
	"github.com/iskrim46/ogurec/internal/scheduler"
	"github.com/iskrim46/ogurec/internal/telemetry"
	"github.com/iskrim46/ogurec/internal/util"
)

const (
	mqttStatusInterval = time.Minute

	banner = `
   ___   __ _ _   _ _ __ ___  ___
  / _ \ / _' | | | | '__/ _ \/ __|
 | (_) | (_| | |_| | | |  __/ (__
  \___/ \__, |\__,_|_|  \___|\___|
        |___/  v%s
 Terraria relay
`
)

type relayFlags struct {
	listen       string
	upstream     string
	writeDefault bool
	console      bool
}

func relayCmd(g *globalFlags, info BuildInfo) *cobra.Command {
	f := &relayFlags{}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the intercepting relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRelay(ctx, cmd, g, f, info)
		},
	}

	cmd.Flags().StringVarP(&f.listen, "listen", "l", "", "client-facing listen address (overrides relay.listen_addr)")
	cmd.Flags().StringVarP(&f.upstream, "upstream", "u", "", "upstream server address (overrides relay.upstream_addr)")
	cmd.Flags().BoolVar(&f.writeDefault, "write-default", false, "write the config file when it does not exist")
	cmd.Flags().BoolVar(&f.console, "console", false, "read admin commands from stdin")
	return cmd
}

// relayConfig maps the config file onto the session listener settings.
func relayConfig(cfg *config.Config) relay.ServerConfig {
	r := cfg.GetRelay()
	i := cfg.GetIntercept()
	return relay.ServerConfig{
		ListenAddr:       r.ListenAddr,
		UpstreamAddr:     r.UpstreamAddr,
		MaxSessions:      r.MaxSessions,
		ReadTimeout:      r.ReadTimeout,
		DialTimeout:      r.DialTimeout,
		AcceptRatePerSec: r.AcceptRatePerSec,
		Relay: relay.Options{
			DisableIntercept: !i.Enabled,
			DamageMultiplier: i.DamageMultiplier,
			CustomReason:     i.CustomReason,
			StrictVersion:    r.StrictVersion,
		},
	}
}

func runRelay(ctx context.Context, cmd *cobra.Command, g *globalFlags, f *relayFlags, info BuildInfo) error {
	fmt.Fprintf(cmd.ErrOrStderr(), banner+"\n", info.Version)

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	r := cfg.GetRelay()
	if f.listen != "" {
		r.ListenAddr = f.listen
	}
	if f.upstream != "" {
		r.UpstreamAddr = f.upstream
	}
	cfg.SetRelay(r)

	if f.writeDefault {
		if _, err := os.Stat(cfg.Path()); errors.Is(err, os.ErrNotExist) {
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote default configuration to %s\n", cfg.Path())
		}
	}

	if err := initLogging(cfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := validate(cmd, cfg); err != nil {
		return err
	}

	log.Info().
		Str("version", info.Version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting ogurec")

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	// The journal is closed after the bus has drained.
	var journal *db.Journal
	jc := cfg.GetJournal()
	if jc.Enabled {
		journal, err = db.OpenJournal(ctx, jc.Path)
		if err != nil {
			return err
		}
		defer journal.Close()
	}

	bus := events.NewEventBus()
	defer bus.Stop()
	if journal != nil {
		journal.Attach(bus)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := relay.NewMetrics(reg)

	srv := relay.NewServer(relayConfig(cfg), bus, metrics)
	if err := srv.Listen(ctx); err != nil {
		return err
	}
	healthMgr := health.NewManager(cfg.GetRelay(), bus)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error { return srv.Serve(gctx) })
	grp.Go(func() error {
		healthMgr.Start(gctx)
		return nil
	})

	if journal != nil {
		sched := scheduler.NewScheduler(jc, journal, bus)
		grp.Go(func() error {
			sched.Start(gctx)
			return nil
		})
	}

	if apiCfg := cfg.GetAPI(); apiCfg.Enabled {
		apiServer := api.NewServer(apiCfg, api.Deps{
			Version:  info.Version,
			Config:   cfg,
			Sessions: srv,
			Journal:  journal,
			Health:   healthMgr,
			Bus:      bus,
			Gatherer: reg,
		})
		grp.Go(func() error {
			if err := apiServer.Start(gctx); err != nil {
				log.Warn().Err(err).Msg("API server failed (non-fatal)")
			}
			return nil
		})
	}

	if mqttCfg := cfg.GetMQTT(); mqttCfg.Enabled {
		status := func() interface{} {
			return map[string]interface{}{
				"sessions": srv.Count(),
				"upstream": healthMgr.Status(),
			}
		}
		mqttHandler, err := telemetry.NewMQTTHandler(mqttCfg, bus,
			telemetry.WithVersion(info.Version),
			telemetry.WithStatus(status, mqttStatusInterval),
		)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		} else {
			grp.Go(func() error {
				if err := mqttHandler.Start(gctx); err != nil {
					log.Warn().Err(err).Msg("MQTT telemetry failed")
				}
				return nil
			})
		}
	}

	if f.console {
		console := NewConsole(srv, cmd.OutOrStdout(), cancel)
		grp.Go(func() error { return console.Run(gctx, cmd.InOrStdin()) })
	}

	err = grp.Wait()
	if err != nil {
		log.Error().Err(err).Msg("relay stopped with error")
	} else {
		log.Info().Msg("ogurec stopped")
	}
	return err
}
