package archive

import (
	"database/sql"

	"codeberg.org/mutker/stepperctl/internal/errors"
	"codeberg.org/mutker/stepperctl/internal/logger"
)

const (
	SchemaVersion = 1

	// SQL statements derived from schema
	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS datasets (
	       id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	       created_at           INTEGER NOT NULL,
	       motor_id             INTEGER NOT NULL CHECK (motor_id >= 0),
	       test_type            INTEGER NOT NULL,
	       sample_rate_hz       INTEGER NOT NULL CHECK (sample_rate_hz > 0),
	       test_duration_ms     INTEGER NOT NULL,
	       test_start_timestamp INTEGER NOT NULL,
	       param_0              REAL NOT NULL,
	       param_1              REAL NOT NULL,
	       param_2              REAL NOT NULL,
	       param_3              REAL NOT NULL,
	       sample_count         INTEGER NOT NULL CHECK (sample_count >= 0),
	       data_valid           INTEGER NOT NULL CHECK (data_valid IN (0, 1)),
	       checksum             INTEGER NOT NULL,
	       state                INTEGER NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS datasets_motor ON datasets (motor_id, id);
	   CREATE TABLE IF NOT EXISTS samples (
	       dataset_id          INTEGER NOT NULL REFERENCES datasets (id) ON DELETE CASCADE,
	       slot                INTEGER NOT NULL,
	       timestamp_us        INTEGER NOT NULL,
	       sequence_id         INTEGER NOT NULL,
	       position            REAL NOT NULL,
	       velocity_dps        REAL NOT NULL,
	       acceleration_dps2   REAL NOT NULL,
	       motor_current_a     REAL NOT NULL,
	       status_flags        INTEGER NOT NULL,
	       thermal_warning     INTEGER NOT NULL CHECK (thermal_warning IN (0, 1)),
	       stall_detected      INTEGER NOT NULL CHECK (stall_detected IN (0, 1)),
	       overcurrent         INTEGER NOT NULL CHECK (overcurrent IN (0, 1)),
	       kval_hold           INTEGER NOT NULL,
	       kval_run            INTEGER NOT NULL,
	       power_consumption_w REAL NOT NULL,
	       thermal_performance REAL NOT NULL,
	       commanded_position  REAL NOT NULL,
	       position_error      REAL NOT NULL,
	       data_quality_score  INTEGER NOT NULL CHECK (data_quality_score BETWEEN 0 AND 100),
	       safety_bounds_ok    INTEGER NOT NULL CHECK (safety_bounds_ok IN (0, 1)),
	       control_loop_time_us INTEGER NOT NULL,
	       PRIMARY KEY (dataset_id, slot)
	   );`

	insertDataSetSQL = `
    INSERT INTO datasets (
        created_at, motor_id, test_type, sample_rate_hz, test_duration_ms,
        test_start_timestamp, param_0, param_1, param_2, param_3,
        sample_count, data_valid, checksum, state
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertSampleSQL = `
    INSERT INTO samples (
        dataset_id, slot, timestamp_us, sequence_id,
        position, velocity_dps, acceleration_dps2,
        motor_current_a, status_flags, thermal_warning, stall_detected, overcurrent,
        kval_hold, kval_run, power_consumption_w, thermal_performance,
        commanded_position, position_error,
        data_quality_score, safety_bounds_ok, control_loop_time_us
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectDataSetSQL = `
    SELECT created_at, motor_id, test_type, sample_rate_hz, test_duration_ms,
        test_start_timestamp, param_0, param_1, param_2, param_3,
        sample_count, data_valid, checksum, state
    FROM datasets
    WHERE id = ?`

	selectSamplesSQL = `
    SELECT timestamp_us, sequence_id,
        position, velocity_dps, acceleration_dps2,
        motor_current_a, status_flags, thermal_warning, stall_detected, overcurrent,
        kval_hold, kval_run, power_consumption_w, thermal_performance,
        commanded_position, position_error,
        data_quality_score, safety_bounds_ok, control_loop_time_us
    FROM samples
    WHERE dataset_id = ?
    ORDER BY slot`

	listDataSetsSQL = `
    SELECT id, created_at, motor_id, test_type, sample_rate_hz, test_duration_ms,
        sample_count, data_valid, checksum, state
    FROM datasets
    WHERE ? < 0 OR motor_id = ?
    ORDER BY id`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				// Only log if it's not the "already committed" error
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version, 0 for an empty database
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()

	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}
