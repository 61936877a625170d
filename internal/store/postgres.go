package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store is the relational adapter contract consumed by the ingest pipeline
// and the reconciler suite (spec §4.B).
type Store interface {
	InsertIntent(ctx context.Context, in IntentInput) (Wallpaper, error)
	FindByUserHash(ctx context.Context, userID, contentHash string) (Wallpaper, bool, error)
	UpdateState(ctx context.Context, id string, from, to UploadState, patch StatePatch) (bool, error)
	SelectStuck(ctx context.Context, state UploadState, olderThan time.Time, limit int) ([]Wallpaper, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	Get(ctx context.Context, id string) (Wallpaper, error)
	// FindByStorageKey looks up the row, if any, that still references key
	// as its storage_key, used by the orphaned-blobs reconciler to decide
	// whether a bucket object has a live owner (spec §4.F).
	FindByStorageKey(ctx context.Context, key string) (Wallpaper, bool, error)
}

type postgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) Store {
	return &postgresStore{db: db}
}

const wallpaperColumns = `
	id, user_id, content_hash, upload_state, state_changed_at, upload_attempts,
	processing_error, file_type, mime_type, file_size_bytes, width, height,
	aspect_ratio, original_filename, storage_key, storage_bucket, uploaded_at, updated_at`

func scanWallpaper(row interface{ Scan(...interface{}) error }) (Wallpaper, error) {
	var w Wallpaper
	err := row.Scan(
		&w.ID, &w.UserID, &w.ContentHash, &w.UploadState, &w.StateChangedAt, &w.UploadAttempts,
		&w.ProcessingError, &w.FileType, &w.MimeType, &w.FileSizeBytes, &w.Width, &w.Height,
		&w.AspectRatio, &w.OriginalFilename, &w.StorageKey, &w.StorageBucket, &w.UploadedAt, &w.UpdatedAt,
	)
	return w, err
}

func (s *postgresStore) InsertIntent(ctx context.Context, in IntentInput) (Wallpaper, error) {
	query := `
		INSERT INTO wallpapers (id, user_id, upload_state, state_changed_at, upload_attempts, uploaded_at, updated_at)
		VALUES ($1, $2, $3, NOW(), 0, NOW(), NOW())
		RETURNING ` + wallpaperColumns

	row := s.db.QueryRowContext(ctx, query, in.ID, in.UserID, StateInitiated)
	w, err := scanWallpaper(row)
	if err != nil {
		return Wallpaper{}, Transient("insertIntent", fmt.Errorf("failed to insert intent: %w", err))
	}
	return w, nil
}

func (s *postgresStore) FindByUserHash(ctx context.Context, userID, contentHash string) (Wallpaper, bool, error) {
	query := `
		SELECT ` + wallpaperColumns + `
		FROM wallpapers
		WHERE user_id = $1 AND content_hash = $2
		  AND upload_state IN ('stored', 'processing', 'completed')
		LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, userID, contentHash)
	w, err := scanWallpaper(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Wallpaper{}, false, nil
		}
		return Wallpaper{}, false, Transient("findByUserHash", fmt.Errorf("failed to look up dedup anchor: %w", err))
	}
	return w, true, nil
}

func (s *postgresStore) Get(ctx context.Context, id string) (Wallpaper, error) {
	query := `SELECT ` + wallpaperColumns + ` FROM wallpapers WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, id)
	w, err := scanWallpaper(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Wallpaper{}, ErrNotFound
		}
		return Wallpaper{}, Transient("get", err)
	}
	return w, nil
}

// UpdateState performs a locked, state-predicated transition: it no-ops
// (returns false, nil) if the row's current state is not `from`, satisfying
// spec §4.B/§4.F's "no duplicate terminal work across instances" invariant.
func (s *postgresStore) UpdateState(ctx context.Context, id string, from, to UploadState, patch StatePatch) (bool, error) {
	setParts := []string{"upload_state = $1", "state_changed_at = NOW()", "updated_at = NOW()"}
	args := []interface{}{to}
	argIndex := 2

	addSet := func(col string, val interface{}) {
		setParts = append(setParts, fmt.Sprintf("%s = $%d", col, argIndex))
		args = append(args, val)
		argIndex++
	}

	if patch.ContentHash != nil {
		addSet("content_hash", *patch.ContentHash)
	}
	if patch.UploadAttempts != nil {
		addSet("upload_attempts", *patch.UploadAttempts)
	}
	if patch.ProcessingError != nil {
		addSet("processing_error", *patch.ProcessingError)
	}
	if patch.FileType != nil {
		addSet("file_type", *patch.FileType)
	}
	if patch.MimeType != nil {
		addSet("mime_type", *patch.MimeType)
	}
	if patch.FileSizeBytes != nil {
		addSet("file_size_bytes", *patch.FileSizeBytes)
	}
	if patch.Width != nil {
		addSet("width", *patch.Width)
	}
	if patch.Height != nil {
		addSet("height", *patch.Height)
	}
	if patch.AspectRatio != nil {
		addSet("aspect_ratio", *patch.AspectRatio)
	}
	if patch.OriginalFilename != nil {
		addSet("original_filename", *patch.OriginalFilename)
	}
	if patch.StorageKey != nil {
		addSet("storage_key", *patch.StorageKey)
	}
	if patch.StorageBucket != nil {
		addSet("storage_bucket", *patch.StorageBucket)
	}

	idArg := argIndex
	args = append(args, id)
	fromArg := argIndex + 1
	args = append(args, from)

	query := fmt.Sprintf(`
		UPDATE wallpapers
		SET %s
		WHERE id = $%d AND upload_state = $%d`,
		strings.Join(setParts, ", "), idArg, fromArg)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, Transient("updateState", fmt.Errorf("failed to update wallpaper state: %w", err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, Transient("updateState", err)
	}
	return rows == 1, nil
}

// SelectStuck claims up to limit rows in state older than olderThan using
// SELECT ... FOR UPDATE SKIP LOCKED so N reconciler instances can share the
// work without duplicating it (spec §4.F, §5).
func (s *postgresStore) SelectStuck(ctx context.Context, state UploadState, olderThan time.Time, limit int) ([]Wallpaper, error) {
	query := `
		SELECT ` + wallpaperColumns + `
		FROM wallpapers
		WHERE upload_state = $1 AND state_changed_at < $2
		ORDER BY state_changed_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED`

	rows, err := s.db.QueryContext(ctx, query, state, olderThan, limit)
	if err != nil {
		return nil, Transient("selectStuck", fmt.Errorf("failed to select stuck rows: %w", err))
	}
	defer rows.Close()

	var out []Wallpaper
	for rows.Next() {
		w, err := scanWallpaper(rows)
		if err != nil {
			return nil, Transient("selectStuck", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// FindByStorageKey looks up the row, if any, that still references key as
// its storage_key, used by the orphaned-blobs reconciler to decide whether
// a bucket object has a live owner (spec §4.F: no row, or a row in
// `failed`, means the object is safe to delete).
func (s *postgresStore) FindByStorageKey(ctx context.Context, key string) (Wallpaper, bool, error) {
	query := `SELECT ` + wallpaperColumns + ` FROM wallpapers WHERE storage_key = $1 LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, key)
	w, err := scanWallpaper(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Wallpaper{}, false, nil
		}
		return Wallpaper{}, false, Transient("findByStorageKey", fmt.Errorf("failed to look up storage key owner: %w", err))
	}
	return w, true, nil
}

func (s *postgresStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`DELETE FROM wallpapers WHERE id IN (%s)`, strings.Join(placeholders, ", "))
	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Transient("deleteByIds", fmt.Errorf("failed to delete orphaned intents: %w", err))
	}
	return nil
}
