package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/OCAP2/touchfly/internal/channel"
	"github.com/OCAP2/touchfly/internal/geo"
	"github.com/OCAP2/touchfly/internal/sim"
	"github.com/OCAP2/touchfly/internal/touchfly"
	"github.com/OCAP2/touchfly/pkg/core"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var errStreamClosed = errors.New("running state stream closed")

// demoOptions describes the scripted flight.
type demoOptions struct {
	// Target overrides North and East with a "lat,lon[,alt]" string.
	Target   string
	North    float64
	East     float64
	Altitude float64
	Speed    float64
	Tick     time.Duration
	Speedup  float64
}

// runDemo connects the simulated drone, places a waypoint while it is
// still on the ground, takes off and waits for the waypoint to be reached.
// Every running state seen on the way is printed to out. svc is closed
// before runDemo returns.
func runDemo(ctx context.Context, svc *touchfly.Service, drone *sim.Drone, home core.Location, opts demoOptions, out io.Writer, log zerolog.Logger) error {
	dest, err := destination(home, &opts)
	if err != nil {
		svc.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	simCtx, stopSim := context.WithCancel(gctx)

	g.Go(func() error {
		err := svc.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return stepDrone(simCtx, drone, opts.Tick, opts.Speedup)
	})
	g.Go(func() error {
		defer stopSim()
		defer svc.Close()
		return flyScenario(gctx, svc, drone, dest, opts, out, log)
	})
	return g.Wait()
}

func destination(home core.Location, opts *demoOptions) (core.Location, error) {
	if opts.Target != "" {
		loc, alt, err := geo.LocationFromString(opts.Target)
		if err != nil {
			return core.Location{}, fmt.Errorf("target %q: %w", opts.Target, err)
		}
		if alt != nil {
			opts.Altitude = *alt
		}
		return loc, nil
	}

	frame, err := geo.NewLocalFrame(home)
	if err != nil {
		return core.Location{}, fmt.Errorf("home frame: %w", err)
	}
	dest, err := frame.Locate(opts.East, opts.North)
	if err != nil {
		return core.Location{}, fmt.Errorf("destination: %w", err)
	}
	return dest, nil
}

// stepDrone advances the simulation by tick*speedup every tick.
func stepDrone(ctx context.Context, drone *sim.Drone, tick time.Duration, speedup float64) error {
	if speedup <= 0 {
		speedup = 1
	}
	dt := time.Duration(float64(tick) * speedup)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			drone.Step(dt)
		}
	}
}

func flyScenario(ctx context.Context, svc *touchfly.Service, drone *sim.Drone, dest core.Location, opts demoOptions, out io.Writer, log zerolog.Logger) error {
	states := svc.RunningState()
	defer states.Unsubscribe()

	drone.Connect()
	if err := waitState(ctx, states, out, func(s core.RunningState) bool {
		return s == core.NoTargetState(true)
	}); err != nil {
		return err
	}

	alt := opts.Altitude
	if err := svc.SetWaypoint(ctx, dest, &alt); err != nil {
		return fmt.Errorf("set waypoint: %w", err)
	}
	if err := svc.SetSpeed(ctx, opts.Speed); err != nil {
		return fmt.Errorf("set speed: %w", err)
	}
	log.Info().
		Float64("lat", dest.Latitude).
		Float64("lon", dest.Longitude).
		Float64("alt", alt).
		Msg("Waypoint placed while landed")

	if err := waitState(ctx, states, out, func(s core.RunningState) bool {
		return s.Kind == core.KindBlocked
	}); err != nil {
		return err
	}

	drone.TakeOff()
	if err := waitState(ctx, states, out, func(s core.RunningState) bool {
		return s.Kind == core.KindRunning
	}); err != nil {
		return err
	}

	started := time.Now()
	if err := waitState(ctx, states, out, func(s core.RunningState) bool {
		return s.Kind == core.KindNoTarget
	}); err != nil {
		return err
	}
	if !svc.CurrentTarget().IsNone() {
		return errors.New("guidance ended with a target still set")
	}

	pos, rel := drone.Position()
	fmt.Fprintf(out, "reached %.6f,%.6f at %.1fm after %s\n", pos.Latitude, pos.Longitude, rel, time.Since(started).Round(time.Millisecond))
	log.Info().Dur("took", time.Since(started)).Msg("Waypoint reached")
	return nil
}

// waitState prints every state received until pred matches.
func waitState(ctx context.Context, states channel.Receiver[core.RunningState], out io.Writer, pred func(core.RunningState) bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-states.Receive():
			if !ok {
				return errStreamClosed
			}
			fmt.Fprintf(out, "state: %s\n", s)
			if pred(s) {
				return nil
			}
		}
	}
}
