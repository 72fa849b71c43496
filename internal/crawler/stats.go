package crawler

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// eta projects the remaining crawl time from the mean page duration
type eta struct {
	total   int
	pages   int
	elapsed time.Duration
}

func newETA(totalPages int) *eta {
	return &eta{total: totalPages}
}

func (e *eta) record(d time.Duration) {
	e.pages++
	e.elapsed += d
}

// remaining estimates the time left after page done of total
func (e *eta) remaining(done int) time.Duration {
	if e.pages == 0 || done >= e.total {
		return 0
	}
	avg := e.elapsed / time.Duration(e.pages)
	return avg * time.Duration(e.total-done)
}

// RenderSummary writes one row per locale crawl plus a total row
func RenderSummary(w io.Writer, runs []Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Locale", "Pages", "Processed", "New", "Updated", "Failed", "Enriched", "Deactivated", "Active", "Stop", "Elapsed"})

	var total Stats
	for _, s := range runs {
		t.AppendRow(table.Row{
			s.Locale,
			s.Pages,
			s.Processed,
			s.New,
			s.Updated,
			s.Failed,
			s.Enriched,
			s.Deactivated,
			s.ActiveTotal,
			s.StopReason,
			s.Elapsed.Round(time.Second),
		})
		total.Pages += s.Pages
		total.Processed += s.Processed
		total.New += s.New
		total.Updated += s.Updated
		total.Failed += s.Failed
		total.Enriched += s.Enriched
		total.Deactivated += s.Deactivated
		total.Elapsed += s.Elapsed
	}

	t.AppendFooter(table.Row{"Total", total.Pages, total.Processed, total.New, total.Updated, total.Failed, total.Enriched, total.Deactivated, "", "", total.Elapsed.Round(time.Second)})
	t.Render()
}
