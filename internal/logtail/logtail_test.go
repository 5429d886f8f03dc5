package logtail

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/five82/scrapedeck/internal/logging"
)

func TestRead(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	var content strings.Builder
	var expectedAll []string
	for i := 1; i <= 10; i++ {
		line := fmt.Sprintf("Line %d", i)
		content.WriteString(line + "\n")
		expectedAll = append(expectedAll, line)
	}
	require.NoError(t, os.WriteFile(logPath, []byte(content.String()), 0o644))

	tests := []struct {
		name     string
		maxLines int
		expected []string
	}{
		{name: "read all (0)", maxLines: 0, expected: expectedAll},
		{name: "read all (negative)", maxLines: -1, expected: expectedAll},
		{name: "read partial (5)", maxLines: 5, expected: expectedAll[5:]},
		{name: "read exactly all (10)", maxLines: 10, expected: expectedAll},
		{name: "read more than exists (20)", maxLines: 20, expected: expectedAll},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(logPath, tt.maxLines)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRead_MissingFile(t *testing.T) {
	got, err := Read(filepath.Join(t.TempDir(), "absent.log"), 10)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParse(t *testing.T) {
	line := `{"level":"warn","ts":"2026-03-01T12:00:05.250Z","logger":"query","caller":"query/synchronizer.go:520","msg":"fetch failed","key":"[\"health\"]","status":503,"error":"health: api returned status 503"}`

	r := Parse(line)
	assert.Equal(t, "warn", r.Level)
	assert.Equal(t, "query", r.Logger)
	assert.Equal(t, "fetch failed", r.Msg)
	assert.True(t, r.Time.Equal(time.Date(2026, 3, 1, 12, 0, 5, 250_000_000, time.UTC)))
	assert.Equal(t, []Field{
		{Key: "error", Value: `"health: api returned status 503"`},
		{Key: "key", Value: `["health"]`},
		{Key: "status", Value: "503"},
	}, r.Fields)

	rendered := r.String()
	assert.Contains(t, rendered, `WARN  query: fetch failed error="health: api returned status 503" key=["health"] status=503`)
	assert.NotContains(t, rendered, "caller")
}

func TestParse_NonJSONLineIsVerbatim(t *testing.T) {
	r := Parse("goroutine 1 [running]:")
	assert.Empty(t, r.Level)
	assert.Equal(t, "goroutine 1 [running]:", r.String())
}

func TestTail_ReadsLoggerOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "scrapedeck.log")
	logger, err := logging.New(path, "info")
	require.NoError(t, err)

	logger.Named("mutation").Info("job created", zap.String("job_id", "j1"))
	logger.Debug("dropped")
	logger.Named("query").Error("fetch failed", zap.Int("status", 500))
	require.NoError(t, logger.Sync())

	records, err := Tail(path, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "info", records[0].Level)
	assert.Equal(t, "mutation", records[0].Logger)
	assert.Equal(t, []Field{{Key: "job_id", Value: "j1"}}, records[0].Fields)
	assert.False(t, records[0].Time.IsZero())

	assert.Equal(t, "error", records[1].Level)
	assert.Contains(t, records[1].String(), "ERROR query: fetch failed status=500")
}
