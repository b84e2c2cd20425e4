package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/akolanti/ChatAnalyzer/internal/locations"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5555"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C"))
	labelStyle = lipgloss.NewStyle().Width(12)
)

func outcomeStyle(o analysisModel.RunOutcome) lipgloss.Style {
	switch o {
	case analysisModel.OutcomeSucceeded:
		return okStyle
	case analysisModel.OutcomePartial:
		return warnStyle
	}
	return failStyle
}

func renderReport(w io.Writer, run analysisModel.RunState, report analysisModel.RunReport) {
	fmt.Fprintln(w, titleStyle.Render("Run "+run.Id))
	field(w, "document", run.DocumentName)
	field(w, "provider", run.Provider+" / "+run.Model)
	if run.ParentRunId != "" {
		field(w, "parent", run.ParentRunId)
	}
	if len(run.Keywords) > 0 {
		field(w, "keywords", strings.Join(run.Keywords, ", ")+" ("+run.KeywordMode+")")
	}
	field(w, "outcome", outcomeStyle(report.Outcome).Render(string(report.Outcome)))
	field(w, "done", fmt.Sprintf("%d of %d chunks", len(report.Done), len(run.ChunkIndices)))
	if len(report.Resumed) > 0 {
		field(w, "resumed", indexList(report.Resumed))
	}
	if len(report.Excluded) > 0 {
		field(w, "excluded", indexList(report.Excluded))
	}
	if len(report.Pending) > 0 {
		field(w, "pending", indexList(report.Pending))
	}
	field(w, "calls", fmt.Sprintf("%d in %s", report.Calls, report.Elapsed.Round(time.Second)))
	if report.AbortReason != "" {
		field(w, "aborted", failStyle.Render(report.AbortReason))
	}
	if len(report.Failed) > 0 {
		fmt.Fprintln(w, failStyle.Render("Failed chunks"))
		for _, f := range report.Failed {
			fmt.Fprintf(w, "  %s  %-11s %s\n", analysisModel.ChunkLabel(f.Index), f.Class, f.Reason)
		}
		fmt.Fprintln(w, mutedStyle.Render("resubmit with: resume "+run.Id))
	}
	if run.Summary != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleStyle.Render("Summary"))
		fmt.Fprintln(w, run.Summary)
	}
}

func renderRuns(w io.Writer, runs []analysisModel.RunState) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs stored.")
		return
	}
	for _, r := range runs {
		outcome := string(r.Outcome)
		if outcome == "" {
			outcome = string(r.Status)
		}
		fmt.Fprintf(w, "%s  %-12s %-10s %4d chunks  %s  %s\n",
			r.Id, r.Kind, outcomeStyle(r.Outcome).Render(outcome), len(r.ChunkIndices),
			r.CreatedAt.Format("2006-01-02 15:04"), mutedStyle.Render(r.DocumentName))
	}
}

func renderConversations(w io.Writer, convs []findingModel.Conversation) {
	if len(convs) == 0 {
		fmt.Fprintln(w, "No conversations found.")
		return
	}
	for _, c := range convs {
		fmt.Fprintf(w, "%s  %-5s %s  (%d messages, chunks %s)\n",
			titleStyle.Render(c.Id), c.Kind, strings.Join(c.Participants, ", "), len(c.Messages), indexList(c.ChunkIndices))
		if c.Header != nil && c.Header.StartTime != "" {
			fmt.Fprintln(w, mutedStyle.Render("  started "+c.Header.StartTime))
		}
		switch {
		case c.Summary != "":
			fmt.Fprintln(w, "  "+strings.ReplaceAll(strings.TrimSpace(c.Summary), "\n", "\n  "))
		case c.SummaryError != "":
			fmt.Fprintln(w, warnStyle.Render("  summary failed: "+c.SummaryError))
		}
	}
}

func renderLocations(w io.Writer, mentions []findingModel.LocationMention) {
	if len(mentions) == 0 {
		fmt.Fprintln(w, "No locations found.")
		return
	}
	for _, m := range mentions {
		where := mutedStyle.Render("unresolved")
		if m.Point != nil {
			where = fmt.Sprintf("%.6f,%.6f", m.Point.Lat, m.Point.Lon)
		}
		fmt.Fprintf(w, "%s  %3d%%  %-20s %s  %s\n", m.Id, m.Confidence, m.Category, where, m.Text)
		if m.Sender != "" || m.Timestamp != "" {
			fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("         %s %s, chunks %s", m.Sender, m.Timestamp, indexList(m.ChunkIndices))))
		}
	}
}

func renderLocationReport(w io.Writer, report locations.Report) {
	renderLocations(w, report.Mentions)
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d mentions, %d geocoded, %d unresolved", len(report.Mentions), report.Geocoded, report.Unresolved)))
	if len(report.FailedChunks) > 0 {
		fmt.Fprintln(w, warnStyle.Render("extraction failed for chunks "+indexList(report.FailedChunks)))
	}
}

func field(w io.Writer, label string, value string) {
	fmt.Fprintln(w, labelStyle.Render(label)+value)
}

func indexList(indices []int) string {
	parts := make([]string, len(indices))
	for i, n := range indices {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}
