// Package stats renders the backend dashboard aggregates as text tables.
package stats

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"lubereport/internal/domain"
)

// Trend compares the current month with the previous one.
type Trend struct {
	Current  int `json:"current"`
	Previous int `json:"previous"`
}

// Delta is the signed change in percent; a zero previous month gives 0
// unless the current month is non-zero, which reads as +100 %.
func (t Trend) Delta() float64 {
	if t.Previous == 0 {
		if t.Current == 0 {
			return 0
		}
		return 100
	}
	return float64(t.Current-t.Previous) * 100 / float64(t.Previous)
}

// Marker is an arrow followed by the rounded percentage.
func (t Trend) Marker() string {
	d := t.Delta()
	switch {
	case d > 0:
		return fmt.Sprintf("▲ +%.0f %%", d)
	case d < 0:
		return fmt.Sprintf("▼ %.0f %%", d)
	default:
		return "= 0 %"
	}
}

// Summary holds the headline figures.
type Summary struct {
	TotalReports          int     `json:"total_reports"`
	AvgAnomaliesPerReport float64 `json:"avg_anomalies_per_report"`
	Anomalies             Trend   `json:"anomalies"`
	Safety                Trend   `json:"safety"`
}

// Summarize extracts the headline figures.
func Summarize(s domain.Stats) Summary {
	return Summary{
		TotalReports:          s.TotalReports,
		AvgAnomaliesPerReport: s.AvgAnomaliesPerReport,
		Anomalies:             Trend{Current: s.CurrentMonthAnomalies, Previous: s.PrevMonthAnomalies},
		Safety:                Trend{Current: s.CurrentMonthSafety, Previous: s.PrevMonthSafety},
	}
}

// Render writes the summary followed by one table per aggregate. Empty
// aggregates are skipped.
func Render(w io.Writer, s domain.Stats) {
	sum := Summarize(s)
	head := newTable(w, "Synthèse")
	head.AppendHeader(table.Row{"Indicateur", "Valeur", "Tendance"})
	head.AppendRow(table.Row{"Rapports", sum.TotalReports, ""})
	head.AppendRow(table.Row{"Anomalies / rapport", fmt.Sprintf("%.2f", sum.AvgAnomaliesPerReport), ""})
	head.AppendRow(table.Row{"Anomalies ce mois", sum.Anomalies.Current, sum.Anomalies.Marker()})
	head.AppendRow(table.Row{"Sécurité ce mois", sum.Safety.Current, sum.Safety.Marker()})
	head.Render()

	if len(s.TopMachines) > 0 {
		RenderMachines(w, "Machines les plus signalées", s.TopMachines)
	}
	if len(s.Zones) > 0 {
		tw := newTable(w, "Zones")
		tw.AppendHeader(table.Row{"Zone", "Anomalies"})
		for _, z := range s.Zones {
			tw.AppendRow(table.Row{z.Zone, z.Count})
		}
		tw.Render()
	}
	if len(s.SafetyTypes) > 0 {
		tw := newTable(w, "Sécurité par type")
		tw.AppendHeader(table.Row{"Type", "Événements"})
		for _, st := range s.SafetyTypes {
			tw.AppendRow(table.Row{st.Type, st.Count})
		}
		tw.Render()
	}
	if len(s.AnomaliesPerMonth) > 0 || len(s.SafetyPerMonth) > 0 {
		tw := newTable(w, "Par mois")
		tw.AppendHeader(table.Row{"Mois", "Anomalies", "Sécurité"})
		for _, m := range mergeMonths(s.AnomaliesPerMonth, s.SafetyPerMonth) {
			tw.AppendRow(table.Row{m.month, m.anomalies, m.safety})
		}
		tw.Render()
	}
	if len(s.DailyEvolution) > 0 {
		tw := newTable(w, "Évolution quotidienne")
		tw.AppendHeader(table.Row{"Jour", "Anomalies", "Sécurité"})
		for _, d := range s.DailyEvolution {
			tw.AppendRow(table.Row{d.Date, d.Anomalies, d.Safety})
		}
		tw.Render()
	}
}

// RenderMachines writes a machine/count table, as used for the top machines
// and keyword searches.
func RenderMachines(w io.Writer, title string, counts []domain.MachineCount) {
	tw := newTable(w, title)
	tw.AppendHeader(table.Row{"Machine", "Occurrences"})
	total := 0
	for _, c := range counts {
		tw.AppendRow(table.Row{c.MachineTag, c.Count})
		total += c.Count
	}
	tw.AppendFooter(table.Row{"Total", total})
	tw.Render()
}

func newTable(w io.Writer, title string) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle(title)
	return tw
}

type monthRow struct {
	month     string
	anomalies int
	safety    int
}

// mergeMonths joins both monthly series on the month key, keeping the order
// in which months first appear.
func mergeMonths(anomalies, safety []domain.MonthCount) []monthRow {
	index := map[string]int{}
	var rows []monthRow
	get := func(month string) *monthRow {
		i, ok := index[month]
		if !ok {
			i = len(rows)
			index[month] = i
			rows = append(rows, monthRow{month: month})
		}
		return &rows[i]
	}
	for _, m := range anomalies {
		get(m.Month).anomalies += m.Count
	}
	for _, m := range safety {
		get(m.Month).safety += m.Count
	}
	return rows
}
