package logger

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressAndSummary(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, 3)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.startTime = clock
	l.now = func() time.Time { return clock }

	l.SkipTask("#0 playstore")

	l.StartTask("#1 playstore")
	clock = clock.Add(2 * time.Second)
	l.CompleteTask("#1 playstore")

	l.StartTask("#2 movies")
	clock = clock.Add(time.Second)
	l.FailTask("#2 movies", errors.New("database not found"))

	// a second completion of the same record is ignored
	l.CompleteTask("#1 playstore")

	assert.Equal(t, Counts{Total: 3, Completed: 1, Failed: 1, Skipped: 1}, l.Counts())

	l.PrintSummary()
	out := buf.String()
	assert.Contains(t, out, "[#1 playstore] ✓ Completed (2.00s)")
	assert.Contains(t, out, "📊 Progress: 2/3 (66.7%) | Elapsed: 2.0s | ETA: 2.0s")
	assert.Contains(t, out, "[#2 movies] ✗ Failed: database not found")
	assert.Contains(t, out, "✓ Annotated: 1")
	assert.Contains(t, out, "⏭  Restored: 1")
	assert.Contains(t, out, "  - #2 movies: database not found")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "N/A", formatDuration(0))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h1m", formatDuration(61*time.Minute))
}
