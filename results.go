package testexec

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-testexec/types"
	"github.com/ethereum-optimism/infra/op-testexec/workitem"
)

// printResultsTable prints one row per dispatched test and a totals footer
func printResultsTable(w io.Writer, summary *workitem.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Test Execution Results (%s)", formatDuration(summary.Duration)))

	t.AppendHeader(table.Row{
		"Test", "Duration", "Status", "Outcome", "Warnings", "Message",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Warnings", Align: text.AlignRight},
		{Name: "Message", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, result := range summary.Results {
		if result == nil {
			continue
		}
		t.AppendRow(table.Row{
			result.Test.FullName(),
			formatDuration(result.Duration),
			getResultString(result.Status()),
			result.State.String(),
			len(result.Warnings),
			firstLine(result.Message),
		})
	}

	switch summary.Status {
	case types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.TestStatusSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		fmt.Sprintf("TOTAL %d", summary.Stats.Total),
		formatDuration(summary.Duration),
		getResultString(summary.Status),
		fmt.Sprintf("%d passed, %d failed, %d errored, %d skipped",
			summary.Stats.Passed, summary.Stats.Failed, summary.Stats.Errored, summary.Stats.Skipped),
		"",
		"",
	})

	t.Render()
}

// printFailureOutput prints the captured output and stack trace of every failing test
func printFailureOutput(w io.Writer, summary *workitem.Summary) {
	for _, result := range summary.Results {
		if result == nil || !result.IsFailure() {
			continue
		}
		fmt.Fprintf(w, "=== %s (%s)\n", result.Test.FullName(), result.State)
		if result.Message != "" {
			fmt.Fprintln(w, result.Message)
		}
		if result.Output != "" {
			fmt.Fprintf(w, "--- output\n%s", result.Output)
			if !strings.HasSuffix(result.Output, "\n") {
				fmt.Fprintln(w)
			}
		}
		if result.StackTrace != "" {
			fmt.Fprintf(w, "--- stack\n%s\n", result.StackTrace)
		}
	}
}

func summaryString(summary *workitem.Summary) string {
	return fmt.Sprintf("run %s: %s (%d tests: %d passed, %d failed, %d errored, %d skipped in %s)",
		summary.RunID, summary.Status, summary.Stats.Total, summary.Stats.Passed,
		summary.Stats.Failed, summary.Stats.Errored, summary.Stats.Skipped, formatDuration(summary.Duration))
}

// getResultString returns a string representing the test status
func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	case types.TestStatusError:
		return "✗ error"
	case types.TestStatusInconclusive:
		return "? inconclusive"
	default:
		return "✗ fail"
	}
}

func firstLine(s string) string {
	if idx := strings.Index(s, "\n"); idx != -1 {
		return s[:idx]
	}
	return s
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
