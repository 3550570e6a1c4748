package obslog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestJSONFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "arena.log")
	logger, closeFn, err := Build(Options{Level: "debug", Format: FormatJSON, File: true, Path: path})
	if err != nil { t.Fatalf("Build: %v", err) }
	logger.Debug("arena_move", zap.String("session_id", "s1"))
	_ = logger.Sync()
	if err := closeFn(); err != nil { t.Fatalf("close: %v", err) }

	raw, err := os.ReadFile(path)
	if err != nil { t.Fatalf("read log: %v", err) }
	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &line); err != nil { t.Fatalf("not json: %q", raw) }
	if line["msg"] != "arena_move" || line["session_id"] != "s1" || line["level"] != "debug" { t.Fatalf("unexpected entry %v", line) }
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.log")
	logger, closeFn, err := Build(Options{Level: "WARNING", Format: FormatLegacy, File: true, Path: path})
	if err != nil { t.Fatalf("Build: %v", err) }
	defer closeFn()
	logger.Info("hidden")
	logger.Warn("shown")
	_ = logger.Sync()
	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), "hidden") || !strings.Contains(string(raw), "WARN | ") { t.Fatalf("unexpected legacy output %q", raw) }
	if _, _, err := Build(Options{Level: "loud"}); err == nil { t.Fatalf("unknown level accepted") }
}

func TestRuntimeLevelChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.log")
	if err := Init(Options{Level: "info", Format: FormatJSON, File: true, Path: path}); err != nil { t.Fatalf("Init: %v", err) }
	t.Cleanup(func() { _ = Close() })

	Named("arena").Debug("before")
	rec := httptest.NewRecorder()
	LevelHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"level":"debug"}`)))
	if rec.Code != http.StatusOK { t.Fatalf("level PUT: %d %s", rec.Code, rec.Body) }
	Named("arena").Debug("after")
	_ = L().Sync()

	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), `"before"`) || !strings.Contains(string(raw), `"after"`) { t.Fatalf("level change not applied: %q", raw) }
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_TO_FILE", "0")
	t.Setenv("LOG_TO_CONSOLE", "")
	t.Setenv("LOG_FILE", "")
	o := OptionsFromEnv()
	lvl, err := parseLevel(o.Level)
	if o.File || !o.Console || o.Path != DefaultLogFile || err != nil || lvl != zapcore.ErrorLevel { t.Fatalf("options %+v", o) }
}
