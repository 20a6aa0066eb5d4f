package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"codeberg.org/mutker/stepperctl/internal/archive"
	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/hal"
	"codeberg.org/mutker/stepperctl/internal/logger"
	"codeberg.org/mutker/stepperctl/internal/metrics"
	"codeberg.org/mutker/stepperctl/internal/pid"
	"codeberg.org/mutker/stepperctl/internal/telemetry"
	"github.com/spf13/cobra"
)

type captureOptions struct {
	motor         int
	testType      string
	rateHz        uint32
	durationMs    uint32
	params        []float64
	currentLimit  float64
	speedLimit    float64
	errorLimit    float64
	noSafety      bool
	out           string
	metricsOutput string
}

func captureCmd() *cobra.Command {
	var opts captureOptions

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record one characterization run into the archive",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := pid.Write(cfg.PIDFile); err != nil {
				return err
			}
			defer func() {
				if err := pid.Remove(cfg.PIDFile); err != nil {
					logger.Warn().Err(err).Msg("Failed to remove PID file")
				}
			}()

			return capture(&opts)
		},
	}

	names := make([]string, 0, int(telemetry.TestCustom))
	for t := telemetry.TestBaseline; t <= telemetry.TestCustom; t++ {
		names = append(names, t.String())
	}

	f := cmd.Flags()
	f.IntVarP(&opts.motor, "motor", "m", 0, "Motor slot to characterize")
	f.StringVarP(&opts.testType, "type", "t", telemetry.TestBaseline.String(), "Test type ("+strings.Join(names, ", ")+")")
	f.Uint32VarP(&opts.rateHz, "rate", "r", 1000, "Sample rate in Hz")
	f.Uint32VarP(&opts.durationMs, "duration", "d", 1000, "Run duration in milliseconds")
	f.Float64SliceVar(&opts.params, "param", nil, "Test parameters recorded with the run (up to 4)")
	f.Float64Var(&opts.currentLimit, "current-limit", 0, "Current limit in A for this run (0 keeps the motor limit)")
	f.Float64Var(&opts.speedLimit, "speed-limit", 0, "Speed limit in deg/s for this run (0 keeps the motor limit)")
	f.Float64Var(&opts.errorLimit, "error-limit", 0, "Position error limit in degrees for this run (0 keeps the motor limit)")
	f.BoolVar(&opts.noSafety, "no-safety", false, "Disable the safety monitor for this run")
	f.StringVarP(&opts.out, "out", "o", "", "Also write the dataset as JSON to this file")
	f.StringVar(&opts.metricsOutput, "metrics-textfile", "", "Write run metrics to this textfile collector file")

	return cmd
}

func (o *captureOptions) testConfig() (*telemetry.TestConfig, error) {
	errFactory := errors.New()

	tt, ok := telemetry.ParseTestType(o.testType)
	if !ok {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, o.testType)
	}

	tc := &telemetry.TestConfig{
		TestType:      tt,
		SampleRateHz:  o.rateHz,
		DurationMs:    o.durationMs,
		CurrentLimitA: o.currentLimit,
		SpeedLimitDps: o.speedLimit,
		ErrorLimitDeg: o.errorLimit,
		DisableSafety: o.noSafety,
	}
	if len(o.params) > len(tc.Parameters) {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, fmt.Sprintf("at most %d parameters", len(tc.Parameters)))
	}
	copy(tc.Parameters[:], o.params)

	return tc, nil
}

func capture(o *captureOptions) error {
	errFactory := errors.New()

	tc, err := o.testConfig()
	if err != nil {
		return err
	}

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

	if err := seedCommandedPosition(eng, o.motor); err != nil {
		return errFactory.Wrap(errors.ErrInitMotor, err)
	}

	ds := telemetry.NewDataSet(cfg.Telemetry.DatasetCapacity)
	runErr := eng.CollectDataset(o.motor, tc, ds)
	if ds.State == telemetry.StateCompleted || ds.State == telemetry.StateAborted {
		collector.DatasetFinished(o.motor, ds.State)
	}

	if o.metricsOutput != "" {
		if h, err := eng.Health(o.motor); err == nil {
			collector.Observe(h)
		}
		if err := collector.WriteTextfile(o.metricsOutput); err != nil {
			logger.Warn().Err(err).Msg("Failed to write metrics textfile")
		}
	}

	m, err := eng.Metrics(o.motor)
	if err != nil {
		logger.Warn().Err(err).Int("motor", o.motor).Msg("Failed to read run metrics")
	}
	event := logger.Info()
	if runErr != nil {
		event = logger.Warn()
		event.Err(runErr)
	}
	event.
		Int("motor", o.motor).
		Str("test_type", tc.TestType.String()).
		Str("state", ds.State.String()).
		Int("samples", ds.SampleCount).
		Uint32("missed", m.MissedSamplesCount).
		Uint32("max_sample_time_us", m.MaxSampleTimeUs).
		Msg("Dataset run finished")

	if ds.SampleCount > 0 {
		id, err := repo.Save(context.Background(), ds)
		if err != nil {
			return errFactory.Wrap(errors.ErrCaptureRun, err)
		}
		if cfg.Archive.Enabled {
			logger.Info().Int64("dataset", id).Msg("Dataset archived")
		}
	}

	if o.out != "" && ds.DataValid {
		if err := writeDataSetFile(o.out, ds); err != nil {
			return err
		}
	}

	if runErr != nil {
		return errFactory.Wrap(errors.ErrCaptureRun, runErr)
	}

	return nil
}

func writeDataSetFile(path string, ds *telemetry.DataSet) error {
	errFactory := errors.New()

	f, err := os.Create(path)
	if err != nil {
		return errFactory.Wrap(errors.ErrExportFailed, err)
	}

	if err := telemetry.WriteJSON(f, ds); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return errFactory.Wrap(errors.ErrExportFailed, err)
	}

	return nil
}
