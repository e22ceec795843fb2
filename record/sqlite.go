package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/alejzeis/rps-arena/game"
	"github.com/alejzeis/rps-arena/record/migrations"
)

const migrationTable = "schema_migrations"

// SQLiteRecorder keeps every finished game and per-user tallies in a SQLite file
type SQLiteRecorder struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// OpenSQLite opens the results database at path and applies embedded migrations
func OpenSQLite(path string) (*SQLiteRecorder, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteRecorder{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle
func (s *SQLiteRecorder) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Record stores the game and bumps both players' tallies in one transaction
func (s *SQLiteRecorder) Record(ctx context.Context, finished game.Finished) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	result := NewResult(finished)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO games (game, player1, player2, move1, move2, outcome, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.Game,
		result.Player1.String(),
		result.Player2.String(),
		result.Move1,
		result.Move2,
		result.Outcome,
		toMillis(result.StartedAt),
		toMillis(result.FinishedAt),
	); err != nil {
		return fmt.Errorf("insert game: %w", err)
	}

	for _, player := range finished.Players {
		if err := bumpTally(ctx, tx, player, finished.OutcomeFor(player)); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record transaction: %w", err)
	}
	return nil
}

func bumpTally(ctx context.Context, tx *sql.Tx, user uuid.UUID, outcome game.Outcome) error {
	var column string
	switch outcome {
	case game.Win:
		column = "win_counter"
	case game.Defeat:
		column = "lose_counter"
	default:
		column = "draw_counter"
	}

	_, err := tx.ExecContext(
		ctx,
		fmt.Sprintf(`INSERT INTO results (user_id, %[1]s) VALUES (?, 1)
		 ON CONFLICT (user_id) DO UPDATE SET %[1]s = results.%[1]s + 1`, column),
		user.String(),
	)
	if err != nil {
		return fmt.Errorf("update %s for %s: %w", column, user, err)
	}
	return nil
}

// Tally returns the user's counters; users without games get zeroes
func (s *SQLiteRecorder) Tally(ctx context.Context, user uuid.UUID) (Tally, error) {
	tally := Tally{User: user}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT win_counter, lose_counter, draw_counter FROM results WHERE user_id = ?`,
		user.String(),
	)
	if err := row.Scan(&tally.Wins, &tally.Losses, &tally.Draws); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tally, nil
		}
		return Tally{}, fmt.Errorf("get tally for %s: %w", user, err)
	}
	return tally, nil
}

// applyMigrations executes the embedded *.sql files in name order, at most once each
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	sort.Strings(sqlFiles)

	if _, err := sqlDB.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`, migrationTable)); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range sqlFiles {
		var found int
		err := sqlDB.QueryRow("SELECT 1 FROM "+migrationTable+" WHERE name = ?", file).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", file, err)
		}

		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration transaction %s: %w", file, err)
		}
		if _, err := tx.Exec(upMigration(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO "+migrationTable+" (name, applied_at) VALUES (?, ?)",
			file,
			toMillis(time.Now()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// upMigration returns the SQL between "-- +migrate Up" and "-- +migrate Down"
func upMigration(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	content = content[upIdx+len("-- +migrate Up"):]
	if downIdx := strings.Index(content, "-- +migrate Down"); downIdx >= 0 {
		content = content[:downIdx]
	}
	return content
}
