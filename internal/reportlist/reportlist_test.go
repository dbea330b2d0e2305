package reportlist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lubereport/internal/domain"
	"lubereport/internal/session"
)

func id(v int64) *int64 { return &v }

func day(d int) time.Time { return time.Date(2024, 3, d, 8, 0, 0, 0, time.UTC) }

func sample() []domain.Report {
	return []domain.Report{
		{ID: id(1), Sector: domain.SectorACV, Date: day(4)},
		{ID: id(2), Sector: domain.SectorACE, Date: day(6)},
		{ID: id(3), Sector: domain.SectorACV, Date: day(5)},
		{ID: id(4), Sector: domain.SectorACE, Date: day(6)},
	}
}

func ids(reports []domain.Report) []int64 {
	out := make([]int64, 0, len(reports))
	for _, r := range reports {
		out = append(out, *r.ID)
	}
	return out
}

func TestSortDoesNotMutateInput(t *testing.T) {
	in := sample()
	assert.Equal(t, []int64{2, 4, 3, 1}, ids(Sort(in, DateDesc)))
	assert.Equal(t, []int64{1, 3, 2, 4}, ids(Sort(in, DateAsc)))
	assert.Equal(t, []int64{2, 4, 1, 3}, ids(Sort(in, SectorAsc)))
	assert.Equal(t, []int64{1, 3, 2, 4}, ids(Sort(in, SectorDesc)))
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(in))
}

func TestParseSortKey(t *testing.T) {
	k, err := ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, DateDesc, k)
	_, err = ParseSortKey("size")
	assert.Error(t, err)
}

func TestBadges(t *testing.T) {
	r := domain.Report{
		Entries: []domain.EntryRecord{
			{MachineTag: "A", Comment: "x", Images: []string{"i1", "i2"}},
			{MachineTag: "B", Comment: "", Image: "legacy"},
			{MachineTag: "C", Comment: "hors", OutOfTour: true},
			{MachineTag: "D", Comment: "", OutOfTour: true},
		},
		SafetyEvents: []domain.SafetyEvent{
			{Type: "EPI", Description: "gants", Images: []string{"s"}},
			{Type: "EPI"},
		},
		HeavyEntries: []domain.HeavyEntry{
			{MachineTag: "P211A", Pression: domain.MeasurePtr("3")},
			{MachineTag: "C1", Images: []string{}},
			{MachineTag: "C2", Images: []string{"h"}},
		},
	}
	assert.Equal(t, Badges{Classic: 1, OutOfTour: 1, Safety: 1, Heavy: 2, Photos: 5}, BadgesOf(r))
}

func TestHeavyBadgeCountsZeroAndUncheckedFields(t *testing.T) {
	var r domain.Report
	require.NoError(t, json.Unmarshal([]byte(`{"sector":"AC/E","entries":[],"safetyEvents":[],"heavyEntries":[
		{"machine_tag":"I520","controle_eau":0,"controle_niveau_huile":null},
		{"machine_tag":"P211A","pression":0},
		{"machine_tag":"C1","pression":null,"observation":""},
		{"machine_tag":"C2"}
	]}`), &r))
	assert.Equal(t, 2, BadgesOf(r).Heavy)
}

func TestPermissions(t *testing.T) {
	r := domain.Report{Sector: domain.SectorACV}
	own := Permissions(r, domain.SectorACV)
	assert.True(t, own.Edit)
	assert.True(t, own.Delete)

	other := Permissions(r, domain.SectorACE)
	assert.False(t, other.Edit)
	assert.False(t, other.Delete)
	assert.True(t, other.Duplicate)
	assert.True(t, other.View)
	assert.True(t, other.Export)
}

type recordingDeleter struct{ calls []int64 }

func (d *recordingDeleter) DeleteReport(_ context.Context, id int64) error {
	d.calls = append(d.calls, id)
	return nil
}

func TestDeleteChecksSectorAndConfirmation(t *testing.T) {
	ctx := context.Background()
	d := &recordingDeleter{}
	r := domain.Report{ID: id(9), Sector: domain.SectorACV}

	var fe session.ForbiddenError
	require.True(t, errors.As(Delete(ctx, d, r, domain.SectorACE, true), &fe))
	assert.ErrorIs(t, Delete(ctx, d, r, domain.SectorACV, false), ErrNotConfirmed)
	assert.Empty(t, d.calls)

	require.NoError(t, Delete(ctx, d, r, domain.SectorACV, true))
	assert.Equal(t, []int64{9}, d.calls)
}

func TestFilter(t *testing.T) {
	f := Filter{Sector: domain.SectorACE, From: time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, []int64{2, 4}, ids(f.Apply(sample())))

	f = Filter{To: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, []int64{1, 3}, ids(f.Apply(sample())))
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	RenderTable(&buf, Build(sample(), DateDesc, domain.SectorACV), time.UTC)
	out := buf.String()
	assert.Contains(t, out, "06/03/2024")
	assert.Contains(t, out, "edit,delete,duplicate,export")
}
