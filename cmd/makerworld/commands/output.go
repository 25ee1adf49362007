package commands

import (
	"fmt"
	"io"
	"makerworld-stats/internal/coordinator"
	"makerworld-stats/internal/snapshot"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return t
}

func section(snap snapshot.Snapshot, s snapshot.Section, value string) string {
	status := snap.Section(s)
	if !status.Available {
		return fmt.Sprintf("unavailable (%s)", status.Reason)
	}
	return value
}

// renderStatus prints whether the values shown are current.
func renderStatus(out io.Writer, snap snapshot.Snapshot, published bool, lastErr *coordinator.ErrorState) {
	if !published {
		fmt.Fprintln(out, "no snapshot has been published yet")
	}
	if lastErr == nil {
		return
	}

	if lastErr.Severity == coordinator.SeverityWarning {
		fmt.Fprintf(out, "last update had warnings: %s\n", lastErr.Message)
		return
	}
	if published {
		fmt.Fprintf(out, "stale since %s\n", snap.FetchedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintf(out, "last update failed: %s (%s, %d in a row)\n", lastErr.Message, lastErr.Kind, lastErr.Consecutive)
	if lastErr.ReauthRequired {
		fmt.Fprintln(out, "the session cookie needs to be refreshed")
	}
	if lastErr.RetryAfter > 0 {
		fmt.Fprintf(out, "scheduled updates paused for %s\n", lastErr.RetryAfter)
	}
}

func renderSnapshot(out io.Writer, snap snapshot.Snapshot) {
	t := newTable(out)
	t.SetTitle("@%s (#%d, %s)", snap.Identity.Handle, snap.Sequence, snap.FetchedAt.Local().Format(time.DateTime))
	t.AppendHeader(table.Row{"Stat", "Value"})

	stats := func(c snapshot.Count) string {
		return section(snap, snapshot.SectionStats, c.String())
	}
	t.AppendRows([]table.Row{
		{"Likes", stats(snap.Stats.Likes)},
		{"Downloads", stats(snap.Stats.Downloads)},
		{"Prints", stats(snap.Stats.Prints)},
		{"Points", stats(snap.Stats.Points)},
		{"Followers", stats(snap.Stats.Followers)},
		{"Boosts received", stats(snap.Stats.Boosts)},
		{"Models", section(snap, snapshot.SectionModels, fmt.Sprintf("%d (%d scanned)", snap.ModelCount, snap.ScannedModels))},
		{"Badges", section(snap, snapshot.SectionBadges, strings.Join(snap.Badges.Titles, ", "))},
		{"Verified", section(snap, snapshot.SectionBadges, snap.Badges.Verified.String())},
	})
	t.Render()

	highlights := newTable(out)
	highlights.SetTitle("Highlights")
	highlights.AppendHeader(table.Row{"Category", "Model", "Count", "URL"})
	for _, category := range snapshot.AllCategories {
		h, ok := snap.Highlight(category)
		if !ok {
			highlights.AppendRow(table.Row{category, section(snap, snapshot.SectionHighlights, "none"), "", ""})
			continue
		}
		highlights.AppendRow(table.Row{category, h.Title, h.Count, h.URL})
	}
	highlights.Render()

	for _, warning := range snap.Warnings {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}
}

func renderPoints(out io.Writer, snap snapshot.Snapshot) {
	t := newTable(out)
	t.SetTitle("Points")
	t.AppendHeader(table.Row{"Key", "Name", "Value"})
	for _, p := range snap.SensorPoints() {
		value := "unknown"
		if p.Value != nil {
			value = fmt.Sprint(p.Value)
		}
		t.AppendRow(table.Row{p.Key, p.Name, value})
	}
	for _, p := range snap.BinaryPoints() {
		t.AppendRow(table.Row{p.Key, p.Name, p.Value.String()})
	}
	t.Render()
}

type jsonOutput struct {
	Published bool                    `json:"published"`
	Snapshot  snapshot.Snapshot       `json:"snapshot"`
	Error     *coordinator.ErrorState `json:"error,omitempty"`
}

func renderJson(snap snapshot.Snapshot, published bool, lastErr *coordinator.ErrorState) error {
	serialized, err := json.MarshalIndent(jsonOutput{
		Published: published,
		Snapshot:  snap,
		Error:     lastErr,
	}, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(serialized))
	return err
}
