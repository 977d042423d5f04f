package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDelta_FinalPickCarriesNullNextPicker(t *testing.T) {
	raw, err := json.Marshal(Delta{
		Type:     DeltaPickMade,
		Sequence: 30,
		Pick:     &Pick{Sequence: 30, DrafterID: "bob", PlayerID: "k2"},
	})
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.Contains(t, fields, "nextPickerId")
	require.JSONEq(t, `null`, string(fields["nextPickerId"]))

	next := "alice"
	raw, err = json.Marshal(Delta{Type: DeltaPickMade, Sequence: 1, NextPickerID: &next})
	require.NoError(t, err)
	require.Contains(t, string(raw), `"nextPickerId":"alice"`)
}
