package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roastwire/roastwire/internal/domain"
	"github.com/roastwire/roastwire/internal/ports"
)

// PostgresArchive writes one summary row per finished recording. It is
// deliberately not the profile-save path: full-fidelity profile storage
// and CRUD live outside roastwire, this only lands the terminal snapshot
// the session already holds.
type PostgresArchive struct {
	db        *sql.DB
	tableName string
}

func NewPostgresArchive(db *sql.DB, table string) *PostgresArchive {
	return &PostgresArchive{db: db, tableName: table}
}

func (a *PostgresArchive) Name() string { return "postgres" }

func (a *PostgresArchive) WriteRecording(rec *domain.Recording) error {
	if rec == nil {
		return nil
	}

	events, err := json.Marshal(rec.Events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}

	// Idempotent on (machine_id, started_ms): re-archiving the same
	// recording is a no-op.
	query := fmt.Sprintf(
		"INSERT INTO %s (machine_id, started_ms, finished_ms, sample_count, events) VALUES ($1,$2,$3,$4,$5) ON CONFLICT (machine_id, started_ms) DO NOTHING",
		a.tableName,
	)

	_, err = a.db.Exec(query, rec.MachineID, rec.StartedMs, rec.FinishedMs, rec.SampleCount, events)
	return err
}

var _ ports.Archive = (*PostgresArchive)(nil)
