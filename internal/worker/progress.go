package worker

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Progress tracks and displays task progress on a terminal line.
type Progress struct {
	startTime time.Time
	output    io.Writer
	unit      string
	total     int
	completed int
	failed    int
	mu        sync.RWMutex
	enabled   bool
}

// NewProgress creates a progress tracker counting unit ("tiles", "layers").
func NewProgress(total int, unit string, enabled bool) *Progress {
	if unit == "" {
		unit = "tasks"
	}
	return &Progress{
		total:     total,
		unit:      unit,
		startTime: time.Now(),
		output:    os.Stderr,
		enabled:   enabled,
	}
}

// SetOutput redirects the progress line.
func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	p.output = w
	p.mu.Unlock()
}

// Update records the completion of a task.
func (p *Progress) Update(completed, total, failed int) {
	p.mu.Lock()
	p.completed = completed
	p.total = total
	p.failed = failed
	p.mu.Unlock()

	if p.enabled {
		p.Print()
	}
}

// Callback returns a ProgressFunc suitable for Config.OnProgress.
func (p *Progress) Callback() ProgressFunc {
	return p.Update
}

// Print writes the current progress line.
func (p *Progress) Print() {
	p.mu.RLock()
	completed, total, failed := p.completed, p.total, p.failed
	startTime, out, unit := p.startTime, p.output, p.unit
	p.mu.RUnlock()

	elapsed := time.Since(startTime)

	var rate float64
	var eta time.Duration
	if completed > 0 && elapsed > 0 {
		rate = float64(completed) / elapsed.Seconds()
		if rate > 0 {
			eta = time.Duration(float64(total-completed)/rate) * time.Second
		}
	}

	const barWidth = 30
	filled := 0
	if total > 0 {
		filled = completed * barWidth / total
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("\r[%s] %d/%d %s", bar, completed, total, unit)
	if failed > 0 {
		line += fmt.Sprintf(" (%d failed)", failed)
	}
	line += fmt.Sprintf(" - %.1f %s/sec", rate, unit)
	if eta > 0 && completed < total {
		line += " - ETA: " + formatDuration(eta)
	}
	if completed == total {
		line += " - Done in " + formatDuration(elapsed)
	}

	// Pad to clear previous line content
	line += "          "

	fmt.Fprint(out, line)
}

// Done prints the final progress and a newline.
func (p *Progress) Done() {
	if p.enabled {
		p.Print()
		p.mu.RLock()
		fmt.Fprintln(p.output)
		p.mu.RUnlock()
	}
}

// Summary returns a one-line summary of the completed work.
func (p *Progress) Summary() string {
	p.mu.RLock()
	completed, total, failed := p.completed, p.total, p.failed
	startTime, unit := p.startTime, p.unit
	p.mu.RUnlock()

	elapsed := time.Since(startTime)

	var rate float64
	if elapsed.Seconds() > 0 {
		rate = float64(completed) / elapsed.Seconds()
	}

	return fmt.Sprintf("Processed %d/%d %s (%d failed) in %s (%.1f %s/sec)",
		completed-failed, total, unit, failed, formatDuration(elapsed), rate, unit)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
