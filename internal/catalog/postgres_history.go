package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/vkorchagin/oddsmesh/internal/pkg/config"
	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
)

var _ HistoryStore = (*PostgresHistory)(nil)

// PostgresHistory persists retired unified records. The full record is stored
// as JSONB next to the columns used for filtering.
type PostgresHistory struct {
	db *sql.DB
}

func NewPostgresHistory(cfg *config.HistoryConfig) (*PostgresHistory, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	h := &PostgresHistory{db: db}
	if err := h.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("Postgres history store initialized")
	return h, nil
}

func (h *PostgresHistory) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS unified_history (
		key VARCHAR(500) PRIMARY KEY,
		sport VARCHAR(100) NOT NULL,
		home VARCHAR(200) NOT NULL,
		away VARCHAR(200) NOT NULL,
		league VARCHAR(200) NOT NULL DEFAULT '',
		start_time TIMESTAMPTZ NOT NULL,
		status VARCHAR(20) NOT NULL,
		record JSONB NOT NULL,
		retired_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_unified_history_sport ON unified_history(sport);
	CREATE INDEX IF NOT EXISTS idx_unified_history_retired_at ON unified_history(retired_at DESC);
	`
	_, err := h.db.ExecContext(ctx, query)
	return err
}

func (h *PostgresHistory) Store(ctx context.Context, rec *models.UnifiedRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	// Retirement is one-directional: the first write for a key wins.
	query := `
	INSERT INTO unified_history (key, sport, home, away, league, start_time, status, record, retired_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (key) DO NOTHING
	`
	_, err = h.db.ExecContext(ctx, query,
		rec.KeyString, rec.SportName, rec.HomeName, rec.AwayName, rec.LeagueName,
		rec.StartTime, string(rec.Status), data, rec.RetiredAt)
	if err != nil {
		return fmt.Errorf("failed to store history record: %w", err)
	}
	return nil
}

func (h *PostgresHistory) Contains(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := h.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM unified_history WHERE key = $1)", key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check history key: %w", err)
	}
	return exists, nil
}

func (h *PostgresHistory) List(ctx context.Context, filter HistoryFilter) ([]models.UnifiedRecord, error) {
	query := "SELECT record FROM unified_history WHERE 1=1"
	args := []interface{}{}
	argn := 1

	if filter.Sport != "" {
		query += fmt.Sprintf(" AND sport = $%d", argn)
		args = append(args, filter.Sport)
		argn++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND retired_at >= $%d", argn)
		args = append(args, filter.Since)
		argn++
	}
	query += " ORDER BY key"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argn)
		args = append(args, filter.Limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []models.UnifiedRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		var rec models.UnifiedRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			slog.Warn("History store: skipping unreadable record", "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (h *PostgresHistory) Close() error {
	return h.db.Close()
}
