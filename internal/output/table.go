// Package output renders updater state for the terminal.
//
// Tables use plain padded columns and, when stdout is a terminal and NO_COLOR
// is unset, ANSI colors for batch status. The Spinner is used while waiting
// on a background daemon.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/autoupdater/internal/store"
)

// ANSI color codes for batch status display
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

func colorize(color, text string) string {
	if !IsColorEnabled() {
		return text
	}
	return color + text + colorReset
}

// RenderBatchTable renders ledger rows in the order given.
func RenderBatchTable(batches []*store.Batch) string {
	if len(batches) == 0 {
		return "No batches recorded.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-10s %-20s %-14s %-12s %-8s %s\n",
		"Batch", "Stamp", "Started", "Status", "Applied", "Archive"))
	sb.WriteString(strings.Repeat("─", 90))
	sb.WriteString("\n")

	for _, b := range batches {
		// Pad before coloring so escape codes don't break alignment.
		status := fmt.Sprintf("%-12s", b.Status)
		sb.WriteString(fmt.Sprintf("%-10s %-20s %-14s %s %-8s %s\n",
			shortID(b.BatchID),
			b.Stamp,
			formatRelativeTime(b.StartedAt),
			colorize(statusColor(b.Status), status),
			fmt.Sprintf("%d/%d", b.Applied, b.Total),
			truncate(baseName(b.Archive), 40)))
	}

	return sb.String()
}

// RenderBatchSummary renders one batch on a single line.
func RenderBatchSummary(b *store.Batch) string {
	return fmt.Sprintf("%s · %s · %s (%s)\n",
		colorize(statusColor(b.Status), string(b.Status)),
		b.Stamp,
		baseName(b.Archive),
		formatRelativeTime(b.StartedAt))
}

// RenderBatchDetail renders one batch and the files it moved into backup.
func RenderBatchDetail(b *store.Batch, files []*store.BackedUpFile) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Batch:       %s\n", b.BatchID))
	sb.WriteString(fmt.Sprintf("Archive:     %s\n", b.Archive))
	sb.WriteString(fmt.Sprintf("Started:     %s (%s)\n", b.StartedAt.Local().Format(time.DateTime), formatRelativeTime(b.StartedAt)))
	sb.WriteString(fmt.Sprintf("Status:      %s\n", colorize(statusColor(b.Status), string(b.Status))))
	sb.WriteString(fmt.Sprintf("Applied:     %d of %d entries\n", b.Applied, b.Total))
	if b.Destination != "" {
		sb.WriteString(fmt.Sprintf("Moved to:    %s\n", b.Destination))
	}
	if b.Error != "" {
		sb.WriteString(fmt.Sprintf("Error:       %s\n", b.Error))
	}
	sb.WriteString(fmt.Sprintf("Backup dir:  %s\n", b.BackupDir))
	sb.WriteString("\n")

	if len(files) == 0 {
		sb.WriteString("No files were backed up.\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("Backed up files (%s):\n", humanize.Comma(int64(len(files)))))
	for _, f := range files {
		sb.WriteString(fmt.Sprintf("  %-40s -> %s\n", truncate(f.RelativePath, 40), f.BackupPath))
	}
	return sb.String()
}

// RenderStatusCounts renders the number of batches per outcome.
func RenderStatusCounts(counts map[store.BatchStatus]int) string {
	order := []store.BatchStatus{
		store.StatusApplied,
		store.StatusPartial,
		store.StatusQuarantined,
		store.StatusDeferred,
	}

	parts := make([]string, 0, len(order))
	for _, status := range order {
		parts = append(parts, fmt.Sprintf("%s %s",
			humanize.Comma(int64(counts[status])),
			colorize(statusColor(status), string(status))))
	}
	return strings.Join(parts, ", ") + "\n"
}

func statusColor(status store.BatchStatus) string {
	switch status {
	case store.StatusApplied:
		return colorGreen
	case store.StatusPartial:
		return colorYellow
	case store.StatusQuarantined:
		return colorRed
	default:
		return colorGray
	}
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if time.Since(t) < time.Minute {
		return "just now"
	}
	return humanize.Time(t)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
