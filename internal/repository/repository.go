package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/leafsii/leafsii-farm/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open connects to Postgres through the pgx stdlib driver.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, db *sql.DB, command string) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	switch command {
	case "up":
		return goose.UpContext(ctx, db, "migrations")
	case "down":
		return goose.DownContext(ctx, db, "migrations")
	case "status":
		return goose.StatusContext(ctx, db, "migrations")
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}

// Repository is the append-only journal of committed farm events.
type Repository struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

func NewRepository(db *sql.DB, logger *zap.SugaredLogger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// AppendEvents stores one operation's events in a single transaction. Events
// already journaled are skipped.
func (r *Repository) AppendEvents(ctx context.Context, events []store.EventRecord) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO farm_events (id, ts, type, pool_id, wallet, amount, attrs)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		attrs, err := json.Marshal(ev.Attrs)
		if err != nil {
			return fmt.Errorf("failed to marshal event attrs: %w", err)
		}
		if ev.Attrs == nil {
			attrs = []byte("{}")
		}

		var amount sql.NullString
		if ev.Amount != "" {
			amount = sql.NullString{String: ev.Amount, Valid: true}
		}

		_, err = stmt.ExecContext(ctx,
			ev.ID,
			ev.Time,
			ev.Type,
			int64(ev.Pool),
			ev.Wallet,
			amount,
			attrs,
		)
		if err != nil {
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debugw("Journaled farm events", "count", len(events))
	return nil
}

// WalletEvents pages through a wallet's events, newest first. cursor is the
// value returned by the previous page, empty for the first.
func (r *Repository) WalletEvents(ctx context.Context, wallet string, limit int, cursor string) ([]store.EventRecord, string, error) {
	before := int64(-1)
	if cursor != "" {
		var err error
		if before, err = strconv.ParseInt(cursor, 10, 64); err != nil {
			return nil, "", fmt.Errorf("invalid cursor format: %w", err)
		}
	}

	query := `
		SELECT id, seq, ts, type, pool_id, wallet, COALESCE(amount::text, ''), attrs
		FROM farm_events
		WHERE wallet = $1 AND ($2 < 0 OR seq < $2)
		ORDER BY seq DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, wallet, before, limit+1) // +1 to check if there are more
	if err != nil {
		return nil, "", fmt.Errorf("failed to query wallet events: %w", err)
	}
	defer rows.Close()

	var (
		events  []store.EventRecord
		lastSeq int64
		hasMore bool
	)
	for rows.Next() {
		if len(events) >= limit {
			hasMore = true
			break
		}

		var (
			ev        store.EventRecord
			id        uuid.UUID
			seq, pool int64
			attrs     []byte
		)
		if err := rows.Scan(&id, &seq, &ev.Time, &ev.Type, &pool, &ev.Wallet, &ev.Amount, &attrs); err != nil {
			return nil, "", fmt.Errorf("failed to scan event: %w", err)
		}
		ev.ID = id
		ev.Pool = uint64(pool)
		if err := json.Unmarshal(attrs, &ev.Attrs); err != nil {
			return nil, "", fmt.Errorf("failed to unmarshal event attrs: %w", err)
		}
		if len(ev.Attrs) == 0 {
			ev.Attrs = nil
		}

		events = append(events, ev)
		lastSeq = seq
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("row iteration error: %w", err)
	}

	var nextCursor string
	if hasMore {
		nextCursor = strconv.FormatInt(lastSeq, 10)
	}
	return events, nextCursor, nil
}

// Health check
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}
