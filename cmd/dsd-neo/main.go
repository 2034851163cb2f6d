package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/arancormonk/dsd-neo/internal/api"
	"github.com/arancormonk/dsd-neo/internal/config"
	"github.com/arancormonk/dsd-neo/internal/eventlog"
	"github.com/arancormonk/dsd-neo/internal/groups"
	"github.com/arancormonk/dsd-neo/internal/ingest"
	"github.com/arancormonk/dsd-neo/internal/mqttclient"
	"github.com/arancormonk/dsd-neo/internal/trunk"
	"github.com/arancormonk/dsd-neo/internal/tuner"
)

// version, commit, and buildTime are injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var overrides config.Overrides
	var showVersion bool
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides DSD_NEO_LOG_LEVEL)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "Status API listen address (overrides DSD_NEO_HTTP_ADDR)")
	flag.StringVar(&overrides.MQTTURL, "mqtt-url", "", "MQTT broker URL (overrides DSD_NEO_MQTT_URL)")
	flag.StringVar(&overrides.RigctlAddr, "rigctl", "", "rigctld host:port (overrides DSD_NEO_RIGCTL_ADDR)")
	flag.StringVar(&overrides.GroupCSV, "groups", "", "Talkgroup directory CSV (overrides DSD_NEO_GROUP_CSV)")
	flag.StringVar(&overrides.CacheDir, "cache-dir", "", "Candidate cache directory (overrides DSD_NEO_CACHE_DIR)")
	flag.Int64Var(&overrides.CCFreqHz, "cc-freq", 0, "Initial control-channel frequency in Hz (overrides DSD_NEO_CC_FREQ_HZ)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s (commit=%s, built=%s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	startTime := time.Now()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("log_level", level.String()).
		Msg("dsd-neo starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Talkgroup directory (optional)
	dir, err := groups.Load(cfg.GroupCSV, log)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.GroupCSV).Msg("failed to load talkgroup directory")
	}
	if dir != nil {
		if err := dir.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("talkgroup directory watch unavailable, edits need a restart")
		}
	}

	// Tuner hooks: rigctl when configured, in-memory fallback otherwise.
	var hooks trunk.Hooks
	if cfg.RigctlAddr != "" {
		rig := tuner.NewRigctl(cfg.RigctlAddr, log)
		defer rig.Close()
		hooks = rig.Hooks()
		log.Info().Str("addr", cfg.RigctlAddr).Msg("rigctl tuner configured")
	} else {
		hooks = tuner.NewFallback().Hooks()
		log.Info().Msg("no tuner configured, using in-memory fallback")
	}

	// Event log (optional)
	var elog *eventlog.Log
	if cfg.DatabaseURL != "" {
		elogLog := log.With().Str("component", "eventlog").Logger()
		elog, err = eventlog.Connect(ctx, cfg.DatabaseURL, elogLog)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect event log database")
		}
		defer elog.Close()
	}

	// MQTT: inbound demodulator events plus outbound status.
	mqttLog := log.With().Str("component", "mqtt").Logger()
	mqtt, err := mqttclient.Connect(mqttclient.Options{
		BrokerURL: cfg.MQTTBrokerURL,
		ClientID:  cfg.MQTTClientID,
		Topics:    cfg.TopicPrefix + "/events/#",
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
		Log:       mqttLog,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
	}
	defer mqtt.Close()
	log.Info().Str("broker", cfg.MQTTBrokerURL).Str("client_id", cfg.MQTTClientID).Msg("mqtt connected")

	// Processing pipeline and the trunking follower it owns.
	var gd trunk.GroupDirectory
	if dir != nil {
		gd = dir
	}
	pipeline := ingest.NewPipeline(ingest.PipelineOptions{
		TrunkConfig: cfg.TrunkConfig(),
		Hooks:       hooks,
		Groups:      gd,
		Publisher:   mqtt,
		EventLog:    elog,
		TopicPrefix: cfg.TopicPrefix,
		Log:         log,
	})
	if cfg.CCFreqHz != 0 {
		pipeline.SM().SetControlChannel(cfg.CCFreqHz)
	}
	pipeline.Start(ctx)
	defer pipeline.Stop()
	mqtt.SetMessageHandler(pipeline.HandleMessage)

	// Status API
	var srv *api.Server
	errCh := make(chan error, 1)
	if cfg.HTTPAddr != "" {
		var dbHealth func(context.Context) error
		if elog != nil {
			dbHealth = elog.HealthCheck
		}
		srv = api.NewServer(api.ServerOptions{
			Addr:          cfg.HTTPAddr,
			Source:        pipeline.SM(),
			Version:       fmt.Sprintf("%s (commit=%s, built=%s)", version, commit, buildTime),
			StartTime:     startTime,
			Log:           log.With().Str("component", "http").Logger(),
			MQTTConnected: mqtt.IsConnected,
			DBHealth:      dbHealth,
		})
		go func() {
			errCh <- srv.Start()
		}()
	}

	log.Info().
		Str("listen", cfg.HTTPAddr).
		Dur("startup_ms", time.Since(startTime)).
		Msg("dsd-neo ready")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("status server error")
		}
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("status server shutdown error")
		}
	}

	log.Info().Msg("dsd-neo stopped")
}
