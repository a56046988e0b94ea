package main

import (
	"time"

	"heroesprofile-filter/internal/domain"
	"heroesprofile-filter/internal/service"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type column struct {
	title string
	align text.Align
}

var summaryColumns = []column{
	{"Battle tag", text.AlignLeft},
	{"Game type", text.AlignLeft},
	{"Listed", text.AlignRight},
	{"Cached", text.AlignRight},
	{"Fetched", text.AlignRight},
	{"Status", text.AlignLeft},
	{"Failed replay", text.AlignLeft},
}

var historyColumns = []column{
	{"Run", text.AlignLeft},
	{"Started", text.AlignLeft},
	{"Status", text.AlignLeft},
	{"Battle tag", text.AlignLeft},
	{"Game type", text.AlignLeft},
	{"Listed", text.AlignRight},
	{"Fetched", text.AlignRight},
	{"Error", text.AlignLeft},
}

// newTable returns a rounded table writer with the header and per column
// alignment already set. Headers stay left aligned.
func newTable(columns []column) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, 0, len(columns))
	configs := make([]table.ColumnConfig, 0, len(columns))
	for i, col := range columns {
		header = append(header, col.title)
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       col.align,
			AlignHeader: text.AlignLeft,
			AlignFooter: col.align,
		})
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)
	return tw
}

func renderSummary(summary service.Summary) string {
	tw := newTable(summaryColumns)

	var listed, cached int
	for _, r := range summary.Results {
		listed += r.Listed
		cached += r.Cached
		tw.AppendRow(table.Row{
			r.BattleTag,
			r.Category.Key(),
			r.Listed,
			r.Cached,
			r.Fetched,
			r.Status(),
			r.FailedReplayID,
		})
	}
	tw.AppendFooter(table.Row{"Total", "", listed, cached, summary.Fetched(), "", ""})
	return tw.Render()
}

func renderHistory(runs []domain.FetchRun) string {
	tw := newTable(historyColumns)

	for _, run := range runs {
		runID := run.ID
		if len(runID) > 8 {
			runID = runID[:8]
		}
		started := run.StartedAt.Local().Format(time.DateTime)

		for _, rec := range run.Results {
			tw.AppendRow(table.Row{runID, started, run.Status, rec.BattleTag, rec.Category, rec.Listed, rec.Fetched, rec.Error})
		}
		// runs that stopped before any category finished still get a line
		if len(run.Results) == 0 || run.Error != "" {
			tw.AppendRow(table.Row{runID, started, run.Status, "", "", "", "", run.Error})
		}
	}
	return tw.Render()
}
