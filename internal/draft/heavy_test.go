package draft

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lubereport/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func TestHeavySetMergesAndClearsCommentOnRAS(t *testing.T) {
	d := HeavyData{}
	d = d.Set("P211A", HeavyChanges{Pression: ptr("3.2"), Comment: ptr("bruit")})
	assert.Equal(t, "3.2", d["P211A"].Pression)
	assert.Equal(t, "bruit", d["P211A"].Comment)

	d = d.Set("P211A", HeavyChanges{RAS: ptr(true)})
	assert.Equal(t, "", d["P211A"].Comment)
	assert.Equal(t, "3.2", d["P211A"].Pression)

	d = d.Set("P211A", HeavyChanges{Comment: ptr("ignored")})
	assert.Equal(t, "", d["P211A"].Comment)
}

func TestHeavySetDoesNotMutateReceiver(t *testing.T) {
	d := HeavyData{"C1": {Pression: "1"}}
	next := d.Set("C1", HeavyChanges{Pression: ptr("2")})
	assert.Equal(t, "1", d["C1"].Pression)
	assert.Equal(t, "2", next["C1"].Pression)
}

func TestToggleAllRASTwiceRestoresFlag(t *testing.T) {
	tags := []string{"C1", "C2"}
	d := HeavyData{"C1": {RAS: true}, "C2": {Comment: "x"}}
	assert.False(t, d.AllRAS(tags))

	once := d.ToggleAllRAS(tags)
	assert.True(t, once.AllRAS(tags))
	assert.Equal(t, "", once["C2"].Comment)

	twice := once.ToggleAllRAS(tags)
	assert.False(t, twice["C1"].RAS)
	assert.False(t, twice["C2"].RAS)
	assert.Equal(t, "", twice["C2"].Comment)

	allSet := HeavyData{"C1": {RAS: true}, "C2": {RAS: true}}
	back := allSet.ToggleAllRAS(tags).ToggleAllRAS(tags)
	assert.True(t, back.AllRAS(tags))
}

func TestAllRASEmptyCatalog(t *testing.T) {
	assert.False(t, HeavyData{}.AllRAS(nil))
}

func TestHeavyEntriesNormalizesToNull(t *testing.T) {
	d := HeavyData{
		"P211B": {Pression: "2.5", Circulation: false},
		"C823A": {Vidange: "2024-03-01", Niveau: true},
	}
	entries := d.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "C823A", entries[0].MachineTag)
	assert.Equal(t, "P211B", entries[1].MachineTag)

	raw, err := json.Marshal(entries[1])
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Nil(t, m["controle_eau"])
	assert.Contains(t, m, "controle_eau")
	assert.Nil(t, m["observation"])
	assert.Equal(t, "2.5", m["pression"])
	assert.Equal(t, []any{}, m["images"])
}

func TestHeavyDataRoundTripFromEntries(t *testing.T) {
	var entries []domain.HeavyEntry
	require.NoError(t, json.Unmarshal([]byte(`[
		{"machine_tag":"I520","controle_eau":1,"controle_niveau_huile":0,"observation":"ok","images":null},
		{"machine_tag":"P211A","pression":3,"temperature":null,"heure":"08:00"}
	]`), &entries))

	d := HeavyDataFromEntries(entries)
	assert.True(t, d["I520"].Circulation)
	assert.False(t, d["I520"].Niveau)
	assert.Equal(t, "ok", d["I520"].Comment)
	assert.Equal(t, []string{}, d["I520"].Images)
	assert.Equal(t, "3", d["P211A"].Pression)
	assert.Equal(t, "08:00", d["P211A"].Heure)
}

func TestDefaultHeavyDay(t *testing.T) {
	monday := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	assert.True(t, DefaultHeavyDay(monday))
	assert.False(t, DefaultHeavyDay(monday.AddDate(0, 0, 2)), "wednesday")
	assert.True(t, DefaultHeavyDay(monday.AddDate(0, 0, 4)), "friday")
	assert.False(t, DefaultHeavyDay(monday.AddDate(0, 0, 5)), "saturday")

	custom := WeekdayPolicy(time.Wednesday)
	assert.True(t, custom(monday.AddDate(0, 0, 2)))
}
