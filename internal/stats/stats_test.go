package stats

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"lubereport/internal/domain"
)

func TestTrend(t *testing.T) {
	assert.Equal(t, 0.0, Trend{}.Delta())
	assert.Equal(t, 100.0, Trend{Current: 3}.Delta())
	assert.Equal(t, 50.0, Trend{Current: 6, Previous: 4}.Delta())
	assert.Equal(t, -25.0, Trend{Current: 3, Previous: 4}.Delta())
	assert.Equal(t, "▲ +50 %", Trend{Current: 6, Previous: 4}.Marker())
	assert.Equal(t, "▼ -25 %", Trend{Current: 3, Previous: 4}.Marker())
	assert.Equal(t, "= 0 %", Trend{Current: 2, Previous: 2}.Marker())
}

func TestMergeMonths(t *testing.T) {
	rows := mergeMonths(
		[]domain.MonthCount{{Month: "2024-01", Count: 4}, {Month: "2024-02", Count: 2}},
		[]domain.MonthCount{{Month: "2024-02", Count: 1}, {Month: "2024-03", Count: 5}},
	)
	assert.Equal(t, []monthRow{
		{month: "2024-01", anomalies: 4},
		{month: "2024-02", anomalies: 2, safety: 1},
		{month: "2024-03", safety: 5},
	}, rows)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, domain.Stats{
		TopMachines:           []domain.MachineCount{{MachineTag: "C283", Count: 7}},
		Zones:                 []domain.ZoneCount{{Zone: "Zone 1", Count: 3}},
		TotalReports:          12,
		AvgAnomaliesPerReport: 1.5,
		CurrentMonthAnomalies: 6,
		PrevMonthAnomalies:    4,
	})
	out := buf.String()
	assert.Contains(t, out, "C283")
	assert.Contains(t, out, "Zone 1")
	assert.Contains(t, out, "1.50")
	assert.Contains(t, out, "▲ +50 %")
	assert.NotContains(t, out, "Évolution quotidienne")
}
