package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"pnr_quality/internal/domain"
	"pnr_quality/internal/quality"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func pct(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) + "%" }

func renderGroups(by string, gs []quality.GroupSummary) string {
	if by == "" {
		by = string(quality.GroupOffice)
	}
	headers := []string{by, "PNRs", "Avg score", "Reachable", "Missing", "Misplaced", "Wrong format"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight}
	rows := make([][]string, 0, len(gs))
	for _, g := range gs {
		rows = append(rows, []string{
			g.Group,
			strconv.Itoa(g.Count),
			strconv.FormatFloat(g.AvgScore, 'f', 2, 64),
			pct(g.ReachablePct),
			pct(g.MissingContactPct),
			pct(g.WronglyPlacedPct),
			pct(g.WrongFormatPct),
		})
	}
	return renderTable(headers, rows, aligns)
}

func renderRun(run domain.ImportRun) string {
	rows := [][]string{
		{"run", run.ID},
		{"source", run.Source},
		{"status", run.Status},
		{"rows", strconv.Itoa(run.Rows)},
		{"processed", strconv.Itoa(run.Processed)},
		{"skipped", strconv.Itoa(run.Skipped)},
		{"bad dates", strconv.Itoa(run.BadDates)},
		{"pnrs", strconv.Itoa(run.PNRs)},
		{"passengers", strconv.Itoa(run.Passengers)},
		{"contacts", strconv.Itoa(run.Contacts)},
		{"took", run.CompletedAt.Sub(run.StartedAt).String()},
	}
	return renderTable([]string{"field", "value"}, rows, []columnAlignment{alignLeft, alignRight})
}
