package archive

import (
	"context"
	"time"

	"codeberg.org/mutker/stepperctl/internal/telemetry"
)

// Repository stores finished characterization runs
type Repository interface {
	Save(ctx context.Context, ds *telemetry.DataSet) (int64, error)
	Load(ctx context.Context, id int64) (*telemetry.DataSet, error)
	// List returns the runs of motorID, or of every motor when motorID < 0
	List(ctx context.Context, motorID int) ([]Summary, error)
	Close() error
}

// Summary describes an archived run without its samples
type Summary struct {
	ID             int64     `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	MotorID        int       `json:"motor_id"`
	TestType       string    `json:"test_type"`
	SampleRateHz   uint32    `json:"sample_rate_hz"`
	TestDurationMs uint32    `json:"test_duration_ms"`
	SampleCount    int       `json:"sample_count"`
	DataValid      bool      `json:"data_valid"`
	Checksum       uint32    `json:"checksum"`
	State          string    `json:"state"`
}
