package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/OCAP2/touchfly/internal/config"
	"github.com/OCAP2/touchfly/internal/guidance"
	"github.com/OCAP2/touchfly/internal/influx"
	"github.com/OCAP2/touchfly/internal/journal"
	"github.com/OCAP2/touchfly/internal/logging"
	"github.com/OCAP2/touchfly/internal/monitor"
	"github.com/OCAP2/touchfly/internal/otel"
	"github.com/OCAP2/touchfly/internal/projection"
	"github.com/OCAP2/touchfly/internal/sim"
	"github.com/OCAP2/touchfly/internal/stream"
	"github.com/OCAP2/touchfly/internal/target"
	"github.com/OCAP2/touchfly/internal/touchfly"
	"github.com/OCAP2/touchfly/pkg/core"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"
)

const usage = `usage: touchfly demo [flags]

Runs a simulated Touch-and-Fly session: the waypoint is placed while the
drone is landed, guidance resumes after takeoff and ends when it is reached.
`

func main() {
	if len(os.Args) < 2 || os.Args[1] != "demo" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err := demo(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "touchfly: %v\n", err)
		os.Exit(1)
	}
}

func demo(args []string) error {
	fs := pflag.NewFlagSet("demo", pflag.ContinueOnError)
	configDir := fs.String("config-dir", ".", "directory containing "+config.FileName)
	homeLat := fs.Float64("home-lat", 48.8566, "home latitude")
	homeLon := fs.Float64("home-lon", 2.3522, "home longitude")
	targetFlag := fs.String("target", "", `waypoint as "lat,lon[,alt]", overrides --north and --east`)
	north := fs.Float64("north", 80, "waypoint offset north of home in meters")
	east := fs.Float64("east", 60, "waypoint offset east of home in meters")
	altitude := fs.Float64("altitude", 15, "waypoint altitude above takeoff in meters")
	speed := fs.Float64("speed", 8, "cruise speed in m/s")
	tick := fs.Duration("tick", 100*time.Millisecond, "simulation tick")
	speedup := fs.Float64("speedup", 4, "simulated seconds per real second")
	timeout := fs.Duration("timeout", 2*time.Minute, "give up after this long")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := config.Load(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "%v, using defaults\n", err)
	}

	sessionStart := time.Now()
	logCfg := config.GetLogConfig()
	logger, sinks, err := logging.Setup(logCfg, "touchfly", os.Stdout, sessionStart)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer sinks.Close()

	otelCfg := config.GetOTelConfig()
	var metricsOut io.Writer
	if otelCfg.Enabled {
		path := otelCfg.File
		if path == "" {
			path = filepath.Join(logCfg.Dir, "touchfly.metrics.json")
		}
		metricsFile := &lumberjack.Logger{Filename: path, MaxSize: logCfg.MaxSizeMB, MaxBackups: logCfg.MaxBackups}
		defer metricsFile.Close()
		metricsOut = metricsFile
	}
	provider, err := otel.New(otel.Config{
		Enabled:     otelCfg.Enabled,
		ServiceName: otelCfg.ServiceName,
		Interval:    otelCfg.Interval,
		Writer:      metricsOut,
	})
	if err != nil {
		return fmt.Errorf("setting up otel: %w", err)
	}
	provider.Install()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("OTel shutdown failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	backend, err := journal.NewBackend(config.GetJournalConfig(), logger)
	if err != nil {
		return fmt.Errorf("creating journal: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("initializing journal: %w", err)
	}
	journalWriter := journal.NewWriter(backend, 64, logger.With().Str("component", "journal").Logger())
	defer func() {
		if err := journalWriter.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close journal")
		}
	}()

	var metrics touchfly.Metrics
	influxManager := influx.NewManager(config.GetInfluxConfig(), logger.With().Str("component", "influx").Logger())
	switch err := influxManager.Connect(ctx); {
	case errors.Is(err, influx.ErrDisabled):
		logger.Info().Msg("InfluxDB disabled")
	case err != nil:
		logger.Warn().Err(err).Msg("InfluxDB unavailable, metrics disabled")
	default:
		metrics = influxManager
	}
	defer influxManager.Close()

	home := core.Location{Latitude: *homeLat, Longitude: *homeLon}
	drone := sim.New(sim.DefaultConfig(home), logger.With().Str("component", "sim").Logger())

	gc := config.GetGuidanceConfig()
	cam := config.GetCameraConfig()
	engine, err := touchfly.New(touchfly.Config{
		Target: target.Config{
			DefaultAltitude: gc.DefaultAltitude,
			POIAltitude:     gc.POIAltitude,
			DefaultSpeed:    gc.DefaultSpeed,
		},
		Guidance: guidance.Config{
			VerticalSpeed:    gc.VerticalSpeed,
			YawRotationSpeed: gc.YawRotationSpeed,
		},
		HorizontalFOV: cam.HorizontalFOV,
		AspectRatio:   cam.AspectRatio,
	}, touchfly.Deps{
		Commander: drone,
		Projector: projection.NewPinhole(cam.MaxRange),
		Journal:   journalWriter,
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	svc, err := touchfly.NewService(engine, logging.NewDispatcherLogger(logger), gc.MailboxSize)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}
	drone.Attach(svc)

	mc := config.GetMonitorConfig()
	mon := monitor.NewService(monitor.Dependencies{
		Source:     svc,
		Interval:   mc.Interval,
		StatusFile: mc.StatusFile,
		Logger:     logger.With().Str("component", "monitor").Logger(),
	})
	if err := mon.Start(); err != nil {
		return fmt.Errorf("starting monitor: %w", err)
	}
	defer mon.Stop()

	if sc := config.GetStreamConfig(); sc.Enabled {
		streamer := stream.New(stream.Config{
			URL:     sc.URL,
			Secret:  sc.Secret,
			Vehicle: sc.Vehicle,
			Home:    home,
		}, logger.With().Str("component", "stream").Logger())
		if err := streamer.Init(); err != nil {
			logger.Warn().Err(err).Str("url", sc.URL).Msg("Status stream unavailable")
		} else {
			forwarded := make(chan struct{})
			go func() {
				defer close(forwarded)
				if err := streamer.Forward(ctx, svc); err != nil {
					logger.Error().Err(err).Msg("Status stream stopped")
				}
			}()
			defer func() {
				<-forwarded
				if err := streamer.Close(); err != nil {
					logger.Warn().Err(err).Msg("Failed to close status stream")
				}
			}()
		}
	}

	logger.Info().
		Float64("homeLat", home.Latitude).
		Float64("homeLon", home.Longitude).
		Msg("Starting demo")

	return runDemo(ctx, svc, drone, home, demoOptions{
		Target:   *targetFlag,
		North:    *north,
		East:     *east,
		Altitude: *altitude,
		Speed:    *speed,
		Tick:     *tick,
		Speedup:  *speedup,
	}, os.Stdout, logging.Sampled(logger))
}
