package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasureZeroIsNotPresent(t *testing.T) {
	var h HeavyEntry
	require.NoError(t, json.Unmarshal([]byte(`{"machine_tag":"P211A","pression":0,"temperature":"0.0","controle_eau":0}`), &h))
	assert.True(t, h.Pression.Set())
	assert.False(t, h.Pression.Present())
	assert.False(t, h.Temperature.Present())
	assert.False(t, h.HasMeasures())
	assert.True(t, h.AnyFieldSet())

	for raw, want := range map[string]bool{`"3.5"`: true, `12`: true, `"bas"`: true, `""`: false, `-0`: false} {
		var m Measure
		require.NoError(t, json.Unmarshal([]byte(raw), &m), raw)
		assert.Equal(t, want, m.Present(), raw)
	}

	var nilMeasure *Measure
	assert.False(t, nilMeasure.Present())
	assert.False(t, HeavyEntry{MachineTag: "C1"}.AnyFieldSet())
}
