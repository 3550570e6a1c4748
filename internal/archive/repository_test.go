package archive

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

type recordingExec struct {
	queries []string
	args    [][]any
}

func (r *recordingExec) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	r.queries = append(r.queries, query)
	r.args = append(r.args, args)
	return nil, nil
}

func TestSaveResultArgs(t *testing.T) {
	rec := &recordingExec{}
	repo := &Repository{exec: rec}
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	s := &domain.Session{
		ID: "g1", WhiteID: "w", BlackID: "b", Status: domain.StatusFinished,
		Result: domain.ResultWhiteWon, FinishReason: domain.ReasonResignation,
		Moves: []domain.Move{{UCI: "e2e4", SAN: "e4"}, {UCI: "e7e5", SAN: "e5"}, {UCI: "g1f3", SAN: "Nf3"}},
		StartedAt: start, FinishedAt: &end, UpdatedAt: end,
	}
	if err := repo.SaveResult(context.Background(), s, "White \"W\"", "Black"); err != nil { t.Fatalf("SaveResult: %v", err) }
	if len(rec.args) != 1 { t.Fatalf("expected one exec, got %d", len(rec.args)) }
	args := rec.args[0]
	if len(args) != 14 { t.Fatalf("expected 14 args, got %d", len(args)) }
	if args[5] != "1-0" || args[6] != "resignation" || args[7] != nil { t.Fatalf("result args %v", args[5:8]) }
	if args[8] != `["e2e4","e7e5","g1f3"]` || args[9] != `["e4","e5","Nf3"]` { t.Fatalf("move args %v %v", args[8], args[9]) }
	pgn := args[10].(string)
	if !strings.Contains(pgn, "[White \"White 'W'\"]") || !strings.Contains(pgn, "1. e4 e5 2. Nf3 1-0") { t.Fatalf("pgn:\n%s", pgn) }
	if args[13] != int64(90000) { t.Fatalf("duration %v", args[13]) }
}

func TestSaveResultSkipsActive(t *testing.T) {
	rec := &recordingExec{}
	repo := &Repository{exec: rec}
	if err := repo.SaveResult(context.Background(), &domain.Session{ID: "g", Status: domain.StatusActive}, "", ""); err != nil { t.Fatalf("SaveResult: %v", err) }
	var nilRepo *Repository
	if err := nilRepo.SaveResult(context.Background(), &domain.Session{}, "", ""); err != nil { t.Fatalf("nil repo: %v", err) }
	if len(rec.queries) != 0 { t.Fatalf("active session must not be archived") }
}

func TestEnsureSchema(t *testing.T) {
	rec := &recordingExec{}
	repo := &Repository{exec: rec}
	if err := repo.EnsureSchema(context.Background()); err != nil { t.Fatalf("EnsureSchema: %v", err) }
	if len(rec.queries) != len(schema) || !strings.Contains(rec.queries[0], "arena_games") { t.Fatalf("queries %v", rec.queries) }
}
