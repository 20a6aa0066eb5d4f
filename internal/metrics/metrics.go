package metrics

import (
	"net/http"
	"strconv"

	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/hal"
	"codeberg.org/mutker/stepperctl/internal/logger"
	"codeberg.org/mutker/stepperctl/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type service struct {
	registry *prometheus.Registry

	sampleTimeAvg    *prometheus.GaugeVec
	sampleTimeMax    *prometheus.GaugeVec
	cpuOverhead      *prometheus.GaugeVec
	timingAccuracy   *prometheus.GaugeVec
	realtime         *prometheus.GaugeVec
	samplesCollected *prometheus.GaugeVec
	samplesMissed    *prometheus.GaugeVec
	violations       *prometheus.GaugeVec
	memoryUsage      *prometheus.GaugeVec
	streaming        *prometheus.GaugeVec

	emergencyStops *prometheus.CounterVec
	datasets       *prometheus.CounterVec
}

// No-op implementation
type noopCollector struct{}

// NewService returns a Collector backed by a private registry, or a no-op
// collector when metrics are disabled.
func NewService(cfg Config) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		logger.Debug().Msg("Metrics export disabled, using no-op collector")
		return noopCollector{}, nil
	}

	ns := cfg.Namespace
	motorGauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "telemetry",
			Name:      name,
			Help:      help,
		}, []string{"motor"})
	}

	s := &service{
		registry:         prometheus.NewRegistry(),
		sampleTimeAvg:    motorGauge("sample_time_avg_us", "Moving average of sample collection time in microseconds."),
		sampleTimeMax:    motorGauge("sample_time_max_us", "Longest sample collection time in microseconds."),
		cpuOverhead:      motorGauge("cpu_overhead_percent", "Last collection time as a share of the sampling period."),
		timingAccuracy:   motorGauge("timing_accuracy_percent", "Agreement of the last sample interval with the configured rate."),
		realtime:         motorGauge("realtime_compatible", "1 while collection fits the real-time headroom."),
		samplesCollected: motorGauge("samples_collected", "Samples collected since the motor was initialized."),
		samplesMissed:    motorGauge("samples_missed", "Dataset slots lost to read failures since the motor was initialized."),
		violations:       motorGauge("safety_violations", "Safety envelope violations since the motor was initialized."),
		memoryUsage:      motorGauge("context_bytes", "Size of the per-motor telemetry context."),
		streaming:        motorGauge("streaming", "1 while the motor is streaming samples."),
		emergencyStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "safety",
			Name:      "emergency_stops_total",
			Help:      "Emergency stops by source.",
		}, []string{"source"}),
		datasets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "dataset",
			Name:      "runs_total",
			Help:      "Finished dataset runs by motor and terminal state.",
		}, []string{"motor", "state"}),
	}

	for _, c := range []prometheus.Collector{
		s.sampleTimeAvg, s.sampleTimeMax, s.cpuOverhead, s.timingAccuracy,
		s.realtime, s.samplesCollected, s.samplesMissed, s.violations,
		s.memoryUsage, s.streaming, s.emergencyStops, s.datasets,
	} {
		if err := s.registry.Register(c); err != nil {
			return nil, errFactory.Wrap(ErrRegistration, err)
		}
	}

	logger.Debug().Str("namespace", ns).Msg("Metrics collector initialized")

	return s, nil
}

func (s *service) Observe(h telemetry.Health) {
	motor := strconv.Itoa(h.MotorID)
	m := h.Metrics

	s.sampleTimeAvg.WithLabelValues(motor).Set(float64(m.AverageSampleTimeUs))
	s.sampleTimeMax.WithLabelValues(motor).Set(float64(m.MaxSampleTimeUs))
	s.cpuOverhead.WithLabelValues(motor).Set(m.CPUOverheadPercent)
	s.timingAccuracy.WithLabelValues(motor).Set(m.TimingAccuracyPercent)
	s.realtime.WithLabelValues(motor).Set(boolToFloat(m.RealTimeCompatible))
	s.samplesCollected.WithLabelValues(motor).Set(float64(m.TotalSamplesCollected))
	s.samplesMissed.WithLabelValues(motor).Set(float64(m.MissedSamplesCount))
	s.violations.WithLabelValues(motor).Set(float64(h.SafetyTrips))
	s.memoryUsage.WithLabelValues(motor).Set(float64(m.MemoryUsageBytes))
	s.streaming.WithLabelValues(motor).Set(boolToFloat(h.Streaming))
}

func (s *service) EmergencyStop(source hal.StopSource) {
	s.emergencyStops.WithLabelValues(source.String()).Inc()
}

func (s *service) DatasetFinished(motorID int, state telemetry.DataSetState) {
	s.datasets.WithLabelValues(strconv.Itoa(motorID), state.String()).Inc()
}

func (s *service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func (s *service) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, s.registry); err != nil {
		return errors.New().Wrap(ErrWriteTextfile, err)
	}

	return nil
}

// No-op implementation
func (noopCollector) Observe(telemetry.Health) {}

func (noopCollector) EmergencyStop(hal.StopSource) {}

func (noopCollector) DatasetFinished(int, telemetry.DataSetState) {}

func (noopCollector) Handler() http.Handler {
	return http.NotFoundHandler()
}

func (noopCollector) WriteTextfile(string) error {
	return nil
}
