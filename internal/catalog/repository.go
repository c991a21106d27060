package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Repository interface {
	CreateSource(ctx context.Context, source *Source) error
	GetSource(ctx context.Context, id string) (*Source, error)
	GetSourceByPath(ctx context.Context, path string) (*Source, error)
	ListSources(ctx context.Context) ([]*Source, error)
	DeleteSource(ctx context.Context, id string) error
	SourceInUse(ctx context.Context, id string) (bool, error)

	CreateComposition(ctx context.Context, comp *Composition) error
	GetComposition(ctx context.Context, id string) (*Composition, error)
	ListCompositions(ctx context.Context, limit int) ([]*Composition, error)

	CreateExport(ctx context.Context, rec *ExportRecord) error
	GetExport(ctx context.Context, id string) (*ExportRecord, error)
	ListExports(ctx context.Context, compositionID string, limit int) ([]*ExportRecord, error)
	UpdateExportStatus(ctx context.Context, id, status, errorMsg, replaceErr string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const sourceColumns = `id, path, display_name, duration_value, duration_scale, width, height,
	has_video, has_audio, frame_rate, tracks_json, created_at`

func (r *SQLiteRepository) CreateSource(ctx context.Context, s *Source) error {
	tracks, err := json.Marshal(s.Tracks)
	if err != nil {
		return fmt.Errorf("encode tracks: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sources (`+sourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Path, s.DisplayName, s.Duration.Value, s.Duration.Scale, s.Width, s.Height,
		boolToInt(s.HasVideo), boolToInt(s.HasAudio), s.FrameRate, string(tracks), s.CreatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetSource(ctx context.Context, id string) (*Source, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	return nilIfNoRows(scanSource(row))
}

func (r *SQLiteRepository) GetSourceByPath(ctx context.Context, path string) (*Source, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE path = ?`, path)
	return nilIfNoRows(scanSource(row))
}

func scanSource(row rowScanner) (*Source, error) {
	var s Source
	var hasVideo, hasAudio int
	var tracks, createdAt string

	err := row.Scan(&s.ID, &s.Path, &s.DisplayName, &s.Duration.Value, &s.Duration.Scale, &s.Width, &s.Height,
		&hasVideo, &hasAudio, &s.FrameRate, &tracks, &createdAt)
	if err != nil {
		return nil, err
	}

	s.HasVideo = hasVideo == 1
	s.HasAudio = hasAudio == 1
	if err := json.Unmarshal([]byte(tracks), &s.Tracks); err != nil {
		return nil, fmt.Errorf("decode tracks of %s: %w", s.ID, err)
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &s, nil
}

func (r *SQLiteRepository) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r *SQLiteRepository) DeleteSource(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) SourceInUse(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM composition_sources WHERE source_id = ?", id).Scan(&n)
	return n > 0, err
}

// CreateComposition stores the composition row and its ordered source list
// in one transaction.
func (r *SQLiteRepository) CreateComposition(ctx context.Context, c *Composition) error {
	snapshot, err := json.Marshal(c.Timeline)
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO compositions (id, name, duration_value, duration_scale, width, height, snapshot_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Duration.Value, c.Duration.Scale, c.FrameSize.Width, c.FrameSize.Height,
		string(snapshot), c.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return err
	}

	for i, sourceID := range c.SourceIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO composition_sources (composition_id, position, source_id) VALUES (?, ?, ?)",
			c.ID, i, sourceID); err != nil {
			return fmt.Errorf("add source %s: %w", sourceID, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) GetComposition(ctx context.Context, id string) (*Composition, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, duration_value, duration_scale, width, height, snapshot_json, created_at
		FROM compositions WHERE id = ?
	`, id)
	c, err := scanComposition(row)
	if err != nil {
		return nilIfNoRows(c, err)
	}
	if c.SourceIDs, err = r.compositionSources(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *SQLiteRepository) ListCompositions(ctx context.Context, limit int) ([]*Composition, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, duration_value, duration_scale, width, height, snapshot_json, created_at
		FROM compositions ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}

	var comps []*Composition
	for rows.Next() {
		c, err := scanComposition(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		comps = append(comps, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The connection pool holds a single connection, so source lists are
	// loaded after the outer cursor is closed.
	for _, c := range comps {
		if c.SourceIDs, err = r.compositionSources(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return comps, nil
}

func scanComposition(row rowScanner) (*Composition, error) {
	var c Composition
	var snapshot, createdAt string
	err := row.Scan(&c.ID, &c.Name, &c.Duration.Value, &c.Duration.Scale, &c.FrameSize.Width, &c.FrameSize.Height,
		&snapshot, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(snapshot), &c.Timeline); err != nil {
		return nil, fmt.Errorf("decode timeline of %s: %w", c.ID, err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

func (r *SQLiteRepository) compositionSources(ctx context.Context, compositionID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT source_id FROM composition_sources WHERE composition_id = ? ORDER BY position", compositionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const exportColumns = `id, composition_id, output_path, status, error, file_replace_error,
	created_at, updated_at, finished_at`

func (r *SQLiteRepository) CreateExport(ctx context.Context, e *ExportRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exports (id, composition_id, output_path, status, error, file_replace_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.CompositionID, e.OutputPath, e.Status, nullString(e.Error), nullString(e.FileReplaceError),
		e.CreatedAt.Format(time.RFC3339), e.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetExport(ctx context.Context, id string) (*ExportRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+exportColumns+` FROM exports WHERE id = ?`, id)
	return nilIfNoRows(scanExport(row))
}

func scanExport(row rowScanner) (*ExportRecord, error) {
	var e ExportRecord
	var errMsg, replaceErr, finishedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&e.ID, &e.CompositionID, &e.OutputPath, &e.Status, &errMsg, &replaceErr,
		&createdAt, &updatedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	e.Error = errMsg.String
	e.FileReplaceError = replaceErr.String
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		e.FinishedAt = &t
	}
	return &e, nil
}

// ListExports returns the newest exports first. An empty compositionID
// lists exports of every composition.
func (r *SQLiteRepository) ListExports(ctx context.Context, compositionID string, limit int) ([]*ExportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + exportColumns + ` FROM exports`
	args := []any{}
	if compositionID != "" {
		query += ` WHERE composition_id = ?`
		args = append(args, compositionID)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exports []*ExportRecord
	for rows.Next() {
		e, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		exports = append(exports, e)
	}
	return exports, rows.Err()
}

// UpdateExportStatus sets finished_at when status is terminal.
func (r *SQLiteRepository) UpdateExportStatus(ctx context.Context, id, status, errorMsg, replaceErr string) error {
	rec := ExportRecord{Status: status}
	_, err := r.db.ExecContext(ctx, `
		UPDATE exports SET status = ?, error = ?, file_replace_error = COALESCE(?, file_replace_error),
			updated_at = datetime('now'),
			finished_at = CASE WHEN ? THEN datetime('now') ELSE finished_at END
		WHERE id = ?
	`, status, nullString(errorMsg), nullString(replaceErr), rec.IsTerminal(), id)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')
	`, key, value)
	return err
}

// nilIfNoRows maps sql.ErrNoRows to a nil result without error.
func nilIfNoRows[T any](v *T, err error) (*T, error) {
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// parseTime accepts RFC3339 values written by the repository and SQLite's
// datetime('now') format.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.DateTime, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
