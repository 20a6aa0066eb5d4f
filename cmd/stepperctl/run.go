package main

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/stepperctl/internal/api"
	"codeberg.org/mutker/stepperctl/internal/archive"
	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/hal"
	"codeberg.org/mutker/stepperctl/internal/logger"
	"codeberg.org/mutker/stepperctl/internal/metrics"
	"codeberg.org/mutker/stepperctl/internal/pid"
	"codeberg.org/mutker/stepperctl/internal/telemetry"
	"github.com/spf13/cobra"
)

// publishHz is how often streaming state reaches the API and metrics
const publishHz = 10

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Stream telemetry of every configured motor until interrupted",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := pid.Write(cfg.PIDFile); err != nil {
				return err
			}
			defer func() {
				if err := pid.Remove(cfg.PIDFile); err != nil {
					logger.Warn().Err(err).Msg("Failed to remove PID file")
				}
			}()

			ctx, cancel := signalContext()
			defer cancel()

			return run(ctx)
		},
	}
}

func run(ctx context.Context) error {
	errFactory := errors.New()

	collector, err := metrics.NewService(cfg.MetricsSettings())
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	repo, err := archive.New(cfg.ArchiveSettings(), logger.Default().With("archive"))
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close dataset archive")
		}
	}()

	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.Close()
	defer stopMotors(hw.driver, hw.motors)

	stop := hal.NewHardStopTrigger(hw.driver, hw.motors, logger.Default().With("estop"))
	stop.OnTrip(collector.EmergencyStop)

	eng, err := newEngine(cfg, hw, stop)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to stop sample timer")
		}
	}()

	snapshots := api.NewSnapshots()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(hw.motors)+1)

	if cfg.API.Enabled {
		srv := api.NewServer(snapshots, repo, collector.Handler(), logger.Default().With("api"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(ctx, cfg.API.Listen); err != nil {
				errCh <- err
				cancel()
			}
		}()
	}

	for _, id := range hw.motors {
		if err := seedCommandedPosition(eng, id); err != nil {
			cancel()
			wg.Wait()
			return errFactory.Wrap(errors.ErrInitMotor, err)
		}

		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := streamMotor(ctx, eng, id, snapshots, collector); err != nil {
				errCh <- err
			}
		}(id)
	}

	logger.Info().Ints("motors", hw.motors).Msg("Streaming telemetry")

	wg.Wait()
	close(errCh)

	if err, ok := <-errCh; ok {
		return errFactory.Wrap(errors.ErrMainLoop, err)
	}

	logger.Info().Msg("Exiting...")

	return nil
}

// streamMotor samples one motor at its configured rate until ctx is
// canceled. A safety violation ends the stream of that motor only; the
// emergency stop has already halted the drivers.
func streamMotor(
	ctx context.Context, eng *telemetry.Engine, id int, snapshots *api.Snapshots, collector metrics.Collector,
) error {
	c, err := eng.Context(id)
	if err != nil {
		return err
	}
	rate := c.SampleRateHz

	if err := eng.StartStreaming(id, rate); err != nil {
		return err
	}

	publishEvery := rate / publishHz
	if publishEvery == 0 {
		publishEvery = 1
	}

	publish := func() {
		c, cerr := eng.Context(id)
		h, herr := eng.Health(id)
		if cerr != nil || herr != nil {
			return
		}
		snapshots.Publish(id, c, h)
		collector.Observe(h)
	}
	defer publish()
	defer func() {
		_ = eng.StopStreaming(id)
	}()

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	var (
		s     telemetry.Sample
		count uint32
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		err := eng.CollectSample(id, &s)
		switch {
		case errors.HasCode(err, telemetry.ErrSafetyLimitViolation):
			logger.Warn().
				Int("motor", id).
				Uint32("sequence", s.SequenceID).
				Float64("position_deg", s.PositionDeg).
				Float64("velocity_dps", s.VelocityDps).
				Float64("current_a", s.MotorCurrentA).
				Float64("position_error_deg", s.PositionError).
				Msg("Safety envelope violated, motor stream stopped")
			return nil
		case err != nil:
			logger.Debug().Err(err).Int("motor", id).Msg("Sample failed")
		}

		count++
		if count%publishEvery == 0 {
			publish()
		}
	}
}
