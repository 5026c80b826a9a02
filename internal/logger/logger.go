// Package logger prints human-readable run progress: one line per record,
// a running percentage with ETA, and a final summary.
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

// Logger progress logger
type Logger struct {
	mu             sync.Mutex
	out            io.Writer
	totalTasks     int
	completedTasks int
	skippedTasks   int
	startTime      time.Time
	now            func() time.Time
	taskDetails    map[string]*TaskProgress
}

// TaskProgress task progress
type TaskProgress struct {
	Name      string
	Status    string // "running", "completed", "failed"
	StartTime time.Time
	EndTime   time.Time
	Error     string
}

// Counts is the tally shown in the summary.
type Counts struct {
	Total     int
	Completed int
	Failed    int
	Skipped   int
}

// NewLogger creates a logger for totalTasks records writing to stdout.
func NewLogger(totalTasks int) *Logger {
	return NewLoggerTo(os.Stdout, totalTasks)
}

// NewLoggerTo writes to out instead of stdout.
func NewLoggerTo(out io.Writer, totalTasks int) *Logger {
	if out == nil {
		out = io.Discard
	}
	return &Logger{
		out:         out,
		totalTasks:  totalTasks,
		startTime:   time.Now(),
		now:         time.Now,
		taskDetails: make(map[string]*TaskProgress),
	}
}

// SetPhase prints a phase banner.
func (l *Logger) SetPhase(phase string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(l.out, "📍 %s\n", phase)
	fmt.Fprintf(l.out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
}

// StartTask starts task
func (l *Logger) StartTask(taskName string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.taskDetails[taskName] = &TaskProgress{
		Name:      taskName,
		Status:    "running",
		StartTime: l.now(),
	}
	fmt.Fprintf(l.out, "[%s] 🔄 Started\n", taskName)
}

// CompleteTask completes task
func (l *Logger) CompleteTask(taskName string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if task, ok := l.taskDetails[taskName]; ok && task.Status == "running" {
		task.Status = "completed"
		task.EndTime = l.now()
		l.completedTasks++

		duration := task.EndTime.Sub(task.StartTime)
		fmt.Fprintf(l.out, "[%s] ✓ Completed (%.2fs)\n", taskName, duration.Seconds())
		l.printProgress()
	}
}

// FailTask fails task
func (l *Logger) FailTask(taskName string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if task, ok := l.taskDetails[taskName]; ok && task.Status == "running" {
		task.Status = "failed"
		task.EndTime = l.now()
		task.Error = err.Error()
		l.completedTasks++

		fmt.Fprintf(l.out, "[%s] ✗ Failed: %v\n", taskName, err)
		l.printProgress()
	}
}

// SkipTask counts a record restored from a checkpoint.
func (l *Logger) SkipTask(taskName string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.skippedTasks++
	l.completedTasks++
	fmt.Fprintf(l.out, "[%s] ⏭  Restored from checkpoint\n", taskName)
}

// printProgress prints progress (internal, locked)
func (l *Logger) printProgress() {
	if l.totalTasks == 0 {
		return
	}

	percentage := float64(l.completedTasks) / float64(l.totalTasks) * 100
	elapsed := l.now().Sub(l.startTime)

	// ETA ignores restored records, which take no time
	var eta time.Duration
	if worked := l.completedTasks - l.skippedTasks; worked > 0 {
		avgTime := elapsed / time.Duration(worked)
		eta = avgTime * time.Duration(l.totalTasks-l.completedTasks)
	}

	fmt.Fprintf(l.out, "📊 Progress: %d/%d (%.1f%%) | Elapsed: %s | ETA: %s\n\n",
		l.completedTasks, l.totalTasks, percentage,
		formatDuration(elapsed), formatDuration(eta))
}

// Counts returns the current tally.
func (l *Logger) Counts() Counts {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts()
}

func (l *Logger) counts() Counts {
	c := Counts{Total: l.totalTasks, Skipped: l.skippedTasks}
	for _, task := range l.taskDetails {
		switch task.Status {
		case "completed":
			c.Completed++
		case "failed":
			c.Failed++
		}
	}
	return c
}

// PrintSummary prints final summary
func (l *Logger) PrintSummary() {
	l.mu.Lock()
	defer l.mu.Unlock()

	totalDuration := l.now().Sub(l.startTime)
	c := l.counts()

	fmt.Fprintf(l.out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(l.out, "📊 Final Summary\n")
	fmt.Fprintf(l.out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Fprintf(l.out, "Total Records: %d\n", c.Total)
	fmt.Fprintf(l.out, "✓ Annotated: %d\n", c.Completed)
	fmt.Fprintf(l.out, "✗ Failed: %d\n", c.Failed)
	if c.Skipped > 0 {
		fmt.Fprintf(l.out, "⏭  Restored: %d\n", c.Skipped)
	}
	fmt.Fprintf(l.out, "⏱️  Total Time: %s\n", formatDuration(totalDuration))

	if c.Completed > 0 {
		avgTime := totalDuration / time.Duration(c.Completed)
		fmt.Fprintf(l.out, "⚡ Avg Time/Record: %s\n", formatDuration(avgTime))
	}

	if c.Failed > 0 {
		var failed []*TaskProgress
		for _, task := range l.taskDetails {
			if task.Status == "failed" {
				failed = append(failed, task)
			}
		}
		sort.Slice(failed, func(i, j int) bool { return failed[i].StartTime.Before(failed[j].StartTime) })

		fmt.Fprintf(l.out, "\n❌ Failed Records:\n")
		for _, task := range failed {
			fmt.Fprintf(l.out, "  - %s: %s\n", task.Name, task.Error)
		}
	}

	fmt.Fprintf(l.out, "\n")
}

// formatDuration formats duration
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "N/A"
	}

	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, minutes)
}

// Info prints info
func (l *Logger) Info(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "ℹ️  "+format+"\n", args...)
}

// Warn prints warning
func (l *Logger) Warn(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "⚠️  "+format+"\n", args...)
}
