package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" driver
	"go.uber.org/zap"

	"songbird/internal/core"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"

	// DefaultRowCacheSize bounds the in-memory cache of recently used songs.
	DefaultRowCacheSize = 1024
	// sqliteBusyTimeoutMs makes concurrent writers wait instead of failing.
	sqliteBusyTimeoutMs = 5000
	// RecentRequestsLimit caps RecentRequests when no positive limit is given.
	RecentRequestsLimit = 50
)

var (
	// ErrUnsupportedDriver is returned by Open for drivers other than sqlite3 and pgx.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	// ErrInvalidSong is returned by CreateOrGet when the identity is incomplete.
	ErrInvalidSong = errors.New("song requires platform and native id")
	// ErrSongNotFound is returned by MarkPlayed for an unknown song ID.
	ErrSongNotFound = errors.New("song not found")
)

const songColumns = `id, platform, native_id, title, artist, duration_ms, thumbnail_url,
	file_path, play_count, last_played_at, created_at`

// Repository stores canonical songs keyed by (platform, native ID) and the
// append-only request log. It is safe for concurrent use.
//
// The key index and row cache only see this process's writes. A Postgres
// database may be shared by several processes, so lookups there always go
// to the database.
type Repository struct {
	db     *sql.DB
	driver string
	shared bool
	index  *KeyIndex
	rows   *lru.Cache[string, core.CanonicalSong]
	logger *zap.Logger
}

// Open connects to the database, applies migrations and warms the key index.
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*Repository, error) {
	var err error

	switch driver {
	case DriverSQLite:
		dsn, err = prepareSQLite(dsn)
		if err != nil {
			return nil, err
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// a single connection serializes writers and keeps the upsert atomic
		db.SetMaxOpenConns(1)
	}

	repo, err := newRepository(ctx, db, driver, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func newRepository(ctx context.Context, db *sql.DB, driver string, logger *zap.Logger) (*Repository, error) {
	rows, err := lru.New[string, core.CanonicalSong](DefaultRowCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create row cache: %w", err)
	}

	repo := &Repository{
		db:     db,
		driver: driver,
		shared: driver == DriverPostgres,
		index:  NewKeyIndex(DefaultIndexCapacity, DefaultFalsePositiveRate),
		rows:   rows,
		logger: logger.Named("store"),
	}

	if err := repo.migrate(ctx); err != nil {
		return nil, err
	}

	if err := repo.loadIndex(ctx); err != nil {
		return nil, err
	}

	repo.logger.Info("Song repository ready",
		zap.String("driver", driver),
		zap.Int("indexed_songs", repo.index.Size()))

	return repo, nil
}

func prepareSQLite(dsn string) (string, error) {
	if dsn == "" {
		return "", errors.New("sqlite dsn is empty")
	}

	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path != ":memory:" && path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	if strings.Contains(dsn, "_busy_timeout") {
		return dsn, nil
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + "_busy_timeout=" + strconv.Itoa(sqliteBusyTimeoutMs), nil
}

func (r *Repository) migrate(ctx context.Context) error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	timestamp := "TIMESTAMP"
	if r.driver == DriverPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
		timestamp = "TIMESTAMPTZ"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS songs (
			id ` + idColumn + `,
			platform TEXT NOT NULL,
			native_id TEXT NOT NULL,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			thumbnail_url TEXT,
			file_path TEXT,
			play_count INTEGER NOT NULL DEFAULT 0,
			last_played_at ` + timestamp + `,
			created_at ` + timestamp + ` NOT NULL,
			UNIQUE (platform, native_id)
		)`,
		`CREATE TABLE IF NOT EXISTS request_log (
			id ` + idColumn + `,
			requester TEXT NOT NULL,
			query TEXT NOT NULL,
			via_voice BOOLEAN NOT NULL DEFAULT FALSE,
			song_id BIGINT REFERENCES songs(id),
			created_at ` + timestamp + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_request_log_requester ON request_log (requester, created_at)`,
	}

	for _, statement := range statements {
		if _, err := r.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return nil
}

func (r *Repository) loadIndex(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `SELECT platform, native_id FROM songs`)
	if err != nil {
		return fmt.Errorf("failed to load song keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var platform, nativeID string
		if err := rows.Scan(&platform, &nativeID); err != nil {
			return fmt.Errorf("failed to scan song key: %w", err)
		}
		keys = append(keys, songKey(core.Platform(platform), nativeID))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load song keys: %w", err)
	}

	r.index.Load(keys)
	return nil
}

// FindByNativeID returns the stored song or nil when none exists.
func (r *Repository) FindByNativeID(
	ctx context.Context, platform core.Platform, nativeID string,
) (*core.CanonicalSong, error) {
	key := songKey(platform, nativeID)
	if !r.shared {
		if !r.index.MightContain(key) {
			return nil, nil
		}
		if song, ok := r.rows.Get(key); ok {
			return &song, nil
		}
	}

	row := r.db.QueryRowContext(ctx, r.rebind(
		`SELECT `+songColumns+` FROM songs WHERE platform = ? AND native_id = ?`),
		string(platform), nativeID)

	song, err := scanSong(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find song: %w", err)
	}

	r.rows.Add(key, *song)
	return song, nil
}

// CreateOrGet inserts song or returns the existing row with the same
// (platform, native ID). Empty fields of an existing row are backfilled from
// song; populated fields are never overwritten.
func (r *Repository) CreateOrGet(ctx context.Context, song *core.CanonicalSong) (*core.CanonicalSong, error) {
	if song == nil || song.Platform == "" || song.NativeID == "" {
		return nil, ErrInvalidSong
	}

	createdAt := song.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := r.rebind(`INSERT INTO songs
			(platform, native_id, title, artist, duration_ms, thumbnail_url, file_path, play_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT (platform, native_id) DO UPDATE SET
			title = CASE WHEN songs.title = '' THEN excluded.title ELSE songs.title END,
			artist = CASE WHEN songs.artist = '' THEN excluded.artist ELSE songs.artist END,
			duration_ms = CASE WHEN songs.duration_ms = 0 THEN excluded.duration_ms ELSE songs.duration_ms END,
			thumbnail_url = COALESCE(songs.thumbnail_url, excluded.thumbnail_url),
			file_path = COALESCE(songs.file_path, excluded.file_path)
		RETURNING id`)

	row := r.db.QueryRowContext(ctx, query,
		string(song.Platform),
		song.NativeID,
		song.Title,
		song.Artist,
		song.Duration.Milliseconds(),
		nullString(song.ThumbnailURL),
		nullString(song.FilePath),
		createdAt,
	)

	var id int64
	if err := row.Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to upsert song: %w", err)
	}

	// re-read so typed columns go through the driver's declared-type conversion
	stored, err := scanSong(r.db.QueryRowContext(ctx, r.rebind(
		`SELECT `+songColumns+` FROM songs WHERE id = ?`), id))
	if err != nil {
		return nil, fmt.Errorf("failed to read stored song: %w", err)
	}

	key := songKey(stored.Platform, stored.NativeID)
	r.index.Add(key)
	r.rows.Add(key, *stored)

	r.logger.Debug("Song stored",
		zap.Int64("id", stored.ID),
		zap.String("platform", string(stored.Platform)),
		zap.String("native_id", stored.NativeID))

	return stored, nil
}

// AppendRequestLog records one user request; SongID is nil for failures.
func (r *Repository) AppendRequestLog(ctx context.Context, entry core.RequestLogEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var songID sql.NullInt64
	if entry.SongID != nil {
		songID = sql.NullInt64{Int64: *entry.SongID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO request_log (requester, query, via_voice, song_id, created_at) VALUES (?, ?, ?, ?, ?)`),
		entry.Requester, entry.Query, entry.ViaVoice, songID, createdAt)
	if err != nil {
		return fmt.Errorf("failed to append request log: %w", err)
	}
	return nil
}

// RecentRequests returns the newest request log entries of requester, or of
// everyone when requester is empty.
func (r *Repository) RecentRequests(ctx context.Context, requester string, limit int) ([]core.RequestLogEntry, error) {
	if limit <= 0 {
		limit = RecentRequestsLimit
	}

	query := `SELECT requester, query, via_voice, song_id, created_at FROM request_log`
	args := []any{}
	if requester != "" {
		query += ` WHERE requester = ?`
		args = append(args, requester)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query request log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []core.RequestLogEntry
	for rows.Next() {
		var (
			entry  core.RequestLogEntry
			songID sql.NullInt64
		)
		if err := rows.Scan(&entry.Requester, &entry.Query, &entry.ViaVoice, &songID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan request log: %w", err)
		}
		if songID.Valid {
			id := songID.Int64
			entry.SongID = &id
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkPlayed increments the play counter of a song.
func (r *Repository) MarkPlayed(ctx context.Context, songID int64) error {
	row := r.db.QueryRowContext(ctx, r.rebind(
		`UPDATE songs SET play_count = play_count + 1, last_played_at = ? WHERE id = ? RETURNING platform, native_id`),
		time.Now().UTC(), songID)

	var platform, nativeID string
	if err := row.Scan(&platform, &nativeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", ErrSongNotFound, songID)
		}
		return fmt.Errorf("failed to mark song played: %w", err)
	}

	r.rows.Remove(songKey(core.Platform(platform), nativeID))
	return nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (r *Repository) rebind(query string) string {
	if r.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSong(row rowScanner) (*core.CanonicalSong, error) {
	var (
		song         core.CanonicalSong
		platform     string
		durationMs   int64
		thumbnailURL sql.NullString
		filePath     sql.NullString
		lastPlayedAt sql.NullTime
	)

	err := row.Scan(&song.ID, &platform, &song.NativeID, &song.Title, &song.Artist, &durationMs,
		&thumbnailURL, &filePath, &song.PlayCount, &lastPlayedAt, &song.CreatedAt)
	if err != nil {
		return nil, err
	}

	song.Platform = core.Platform(platform)
	song.Duration = time.Duration(durationMs) * time.Millisecond
	song.ThumbnailURL = thumbnailURL.String
	song.FilePath = filePath.String
	if lastPlayedAt.Valid {
		t := lastPlayedAt.Time
		song.LastPlayedAt = &t
	}
	return &song, nil
}

func songKey(platform core.Platform, nativeID string) string {
	return string(platform) + ":" + nativeID
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
