package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/game"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Repository archives finished sessions into Postgres.
type Repository struct {
	db   *sql.DB
	exec execer
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db, exec: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS arena_games (
        game_id       TEXT PRIMARY KEY,
        white_id      TEXT NOT NULL,
        white_name    TEXT NOT NULL,
        black_id      TEXT NOT NULL,
        black_name    TEXT NOT NULL,
        result        VARCHAR(8) NOT NULL,
        result_method VARCHAR(32) NOT NULL,
        rematch_of    TEXT,
        moves_uci     JSONB NOT NULL,
        moves_san     JSONB NOT NULL,
        pgn           TEXT NOT NULL,
        started_at    TIMESTAMPTZ NOT NULL,
        ended_at      TIMESTAMPTZ NOT NULL,
        duration_ms   BIGINT NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_arena_games_white ON arena_games(white_id)`,
	`CREATE INDEX IF NOT EXISTS idx_arena_games_black ON arena_games(black_id)`,
	`CREATE INDEX IF NOT EXISTS idx_arena_games_ended ON arena_games(ended_at)`,
}

// EnsureSchema creates the archive table and indexes if missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, q := range schema {
		if _, err := r.exec.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const upsertResult = `INSERT INTO arena_games (
    game_id, white_id, white_name, black_id, black_name,
    result, result_method, rematch_of, moves_uci, moves_san, pgn,
    started_at, ended_at, duration_ms
  ) VALUES (
    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
  ) ON CONFLICT (game_id) DO UPDATE SET
    white_name=EXCLUDED.white_name,
    black_name=EXCLUDED.black_name,
    result=EXCLUDED.result,
    result_method=EXCLUDED.result_method,
    rematch_of=EXCLUDED.rematch_of,
    moves_uci=EXCLUDED.moves_uci,
    moves_san=EXCLUDED.moves_san,
    pgn=EXCLUDED.pgn,
    ended_at=EXCLUDED.ended_at,
    duration_ms=EXCLUDED.duration_ms`

// SaveResult upserts a finished session. Active sessions are ignored.
func (r *Repository) SaveResult(ctx context.Context, s *domain.Session, whiteName, blackName string) error {
	if r == nil || r.exec == nil || s == nil || s.Status != domain.StatusFinished {
		return nil
	}
	_, err := r.exec.ExecContext(ctx, upsertResult, resultArgs(s, whiteName, blackName)...)
	return err
}

func resultArgs(s *domain.Session, whiteName, blackName string) []any {
	movesUCIRaw, _ := json.Marshal(game.UCIList(s))
	movesSANRaw, _ := json.Marshal(game.SANList(s))
	ended := s.UpdatedAt
	if s.FinishedAt != nil {
		ended = *s.FinishedAt
	}
	duration := ended.Sub(s.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	var rematchOf any
	if s.RematchOf != "" {
		rematchOf = s.RematchOf
	}
	return []any{
		s.ID,
		s.WhiteID, strings.TrimSpace(whiteName),
		s.BlackID, strings.TrimSpace(blackName),
		s.Result, string(s.FinishReason), rematchOf,
		string(movesUCIRaw), string(movesSANRaw), game.BuildPGN(s, whiteName, blackName),
		s.StartedAt, ended, duration,
	}
}
