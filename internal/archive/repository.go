package archive

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/logger"
	"codeberg.org/mutker/stepperctl/internal/telemetry"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
	mu     sync.Mutex
}

// New returns the archive described by cfg, or a no-op archive when it is
// disabled.
func New(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Dataset archive disabled, using no-op repository")
		return noopRepository{}, nil
	}

	return NewRepository(cfg, log)
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Dataset archive initialized")

	return &repository{
		db:     db,
		logger: log,
		cfg:    cfg,
	}, nil
}

// Save stores ds and its samples in one transaction and returns the new id.
func (r *repository) Save(ctx context.Context, ds *telemetry.DataSet) (int64, error) {
	errFactory := errors.New()

	if ds == nil || ds.SampleCount < 0 || ds.SampleCount > len(ds.Samples) {
		return 0, errFactory.New(ErrInvalidDataSet)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
		}
	}()

	res, err := tx.ExecContext(ctx, insertDataSetSQL,
		time.Now().Unix(),
		ds.MotorID,
		int64(ds.TestType),
		int64(ds.SampleRateHz),
		int64(ds.TestDurationMs),
		int64(ds.TestStartTimestamp),
		ds.TestParameters[0],
		ds.TestParameters[1],
		ds.TestParameters[2],
		ds.TestParameters[3],
		ds.SampleCount,
		boolToInt(ds.DataValid),
		int64(ds.Checksum),
		int64(ds.State),
	)
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSampleSQL)
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for i, s := range ds.Records() {
		if _, err := stmt.ExecContext(ctx,
			id, i,
			int64(s.TimestampUs),
			int64(s.SequenceID),
			s.PositionDeg,
			s.VelocityDps,
			s.AccelerationDps2,
			s.MotorCurrentA,
			int64(s.StatusFlags),
			boolToInt(s.ThermalWarning),
			boolToInt(s.StallDetected),
			boolToInt(s.OvercurrentDetected),
			int64(s.KvalHold),
			int64(s.KvalRun),
			s.PowerConsumptionW,
			s.ThermalPerformance,
			s.CommandedPosition,
			s.PositionError,
			int64(s.DataQualityScore),
			boolToInt(s.SafetyBoundsOK),
			int64(s.ControlLoopTimeUs),
		); err != nil {
			return 0, errFactory.WithData(ErrTransactionFailed, struct {
				Phase string
				Slot  int
				Error string
			}{
				Phase: "insert_sample",
				Slot:  i,
				Error: err.Error(),
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	r.logger.Debug().
		Int64("dataset", id).
		Int("motor", ds.MotorID).
		Int("samples", ds.SampleCount).
		Msg("Dataset archived")

	return id, nil
}

// Load reads a dataset back and checks it against its stored checksum.
func (r *repository) Load(ctx context.Context, id int64) (*telemetry.DataSet, error) {
	errFactory := errors.New()

	var (
		createdAt, testType, rate, duration, start, checksum, state int64
		motorID, count, valid                                       int
		params                                                      [4]float64
	)

	err := r.db.QueryRowContext(ctx, selectDataSetSQL, id).Scan(
		&createdAt, &motorID, &testType, &rate, &duration, &start,
		&params[0], &params[1], &params[2], &params[3],
		&count, &valid, &checksum, &state,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errFactory.WithData(ErrDataSetNotFound, id)
	}
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	ds := telemetry.NewDataSet(count)
	ds.MotorID = motorID
	ds.TestType = telemetry.TestType(testType)
	ds.SampleRateHz = uint32(rate)
	ds.TestDurationMs = uint32(duration)
	ds.TestStartTimestamp = uint32(start)
	ds.TestParameters = params
	ds.DataValid = valid == 1
	ds.Checksum = uint32(checksum)
	ds.State = telemetry.DataSetState(state)

	rows, err := r.db.QueryContext(ctx, selectSamplesSQL, id)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	for rows.Next() {
		if ds.SampleCount >= count {
			return nil, errFactory.WithData(ErrChecksumMismatch, struct {
				Dataset int64
				Stored  int
			}{
				Dataset: id,
				Stored:  count,
			})
		}
		if err := scanSample(rows, &ds.Samples[ds.SampleCount]); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		ds.SampleCount++
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	if sum := telemetry.Checksum(ds); sum != ds.Checksum {
		return nil, errFactory.WithData(ErrChecksumMismatch, struct {
			Dataset  int64
			Stored   uint32
			Computed uint32
		}{
			Dataset:  id,
			Stored:   ds.Checksum,
			Computed: sum,
		})
	}

	return ds, nil
}

func scanSample(rows *sql.Rows, s *telemetry.Sample) error {
	var (
		ts, seq, flags, kvalHold, kvalRun, quality, loop int64
		thermal, stall, ocd, safe                        int
	)

	if err := rows.Scan(
		&ts, &seq,
		&s.PositionDeg, &s.VelocityDps, &s.AccelerationDps2,
		&s.MotorCurrentA, &flags, &thermal, &stall, &ocd,
		&kvalHold, &kvalRun, &s.PowerConsumptionW, &s.ThermalPerformance,
		&s.CommandedPosition, &s.PositionError,
		&quality, &safe, &loop,
	); err != nil {
		return err
	}

	s.TimestampUs = uint32(ts)
	s.SequenceID = uint32(seq)
	s.StatusFlags = uint8(flags)
	s.ThermalWarning = thermal == 1
	s.StallDetected = stall == 1
	s.OvercurrentDetected = ocd == 1
	s.KvalHold = uint8(kvalHold)
	s.KvalRun = uint8(kvalRun)
	s.DataQualityScore = uint8(quality)
	s.SafetyBoundsOK = safe == 1
	s.ControlLoopTimeUs = uint32(loop)

	return nil
}

func (r *repository) List(ctx context.Context, motorID int) ([]Summary, error) {
	errFactory := errors.New()

	rows, err := r.db.QueryContext(ctx, listDataSetsSQL, motorID, motorID)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var (
			s                                                    Summary
			createdAt, testType, rate, duration, checksum, state int64
			valid                                                int
		)
		if err := rows.Scan(&s.ID, &createdAt, &s.MotorID, &testType, &rate, &duration,
			&s.SampleCount, &valid, &checksum, &state); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}

		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		s.TestType = telemetry.TestType(testType).String()
		s.SampleRateHz = uint32(rate)
		s.TestDurationMs = uint32(duration)
		s.DataValid = valid == 1
		s.Checksum = uint32(checksum)
		s.State = telemetry.DataSetState(state).String()
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return summaries, nil
}

func (r *repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Dataset archive closed gracefully")

	return nil
}

// noopRepository accepts and forgets every dataset
type noopRepository struct{}

func (noopRepository) Save(context.Context, *telemetry.DataSet) (int64, error) {
	return 0, nil
}

func (noopRepository) Load(_ context.Context, id int64) (*telemetry.DataSet, error) {
	return nil, errors.New().WithData(ErrArchiveDisabled, id)
}

func (noopRepository) List(context.Context, int) ([]Summary, error) {
	return []Summary{}, nil
}

func (noopRepository) Close() error {
	return nil
}
