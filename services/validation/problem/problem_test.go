// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package problem

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverity_String(t *testing.T) {
	assert.Equal(t, "info", SeverityInfo.String())
	assert.Equal(t, "warning", SeverityWarning.String())
	assert.Equal(t, "error", SeverityError.String())
	assert.Equal(t, "unknown", Severity(99).String())
}

func TestSeverityFromString(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
	}{
		{"error", SeverityError},
		{"FATAL", SeverityError},
		{"warn", SeverityWarning},
		{"style", SeverityInfo},
		{"", SeverityWarning},
		{"bogus", SeverityWarning},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SeverityFromString(tt.in))
		})
	}
}

func TestSeverity_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		S Severity `json:"s"`
	}{SeverityError})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"error"}`, string(data))

	var out struct {
		S Severity `json:"s"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"s":"info"}`), &out))
	assert.Equal(t, SeverityInfo, out.S)
}

func TestProblem_ToMarker(t *testing.T) {
	p := Problem{
		RuleID:      "no-system-out",
		Severity:    SeverityWarning,
		Message:     "avoid System.out",
		Line:        12,
		Column:      5,
		StartOffset: 200,
		EndOffset:   230,
	}

	m := p.ToMarker("astvalidation.style", "src/A.java")

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "astvalidation.style", m.Type)
	assert.Equal(t, "src/A.java", m.Resource)
	assert.Equal(t, "no-system-out", m.RuleID)
	assert.Equal(t, SeverityWarning, m.Severity)
	assert.Equal(t, 12, m.Line)
	assert.Equal(t, 200, m.CharStart)
	assert.Equal(t, 230, m.CharEnd)
	assert.Positive(t, m.CreatedAtMs)
	assert.Equal(t, "src/A.java:12:5", m.Location())

	other := p.ToMarker("astvalidation.style", "src/A.java")
	assert.NotEqual(t, m.ID, other.ID, "each conversion yields a distinct marker")
}

func TestProblem_Location(t *testing.T) {
	assert.Equal(t, "3:7", Problem{Line: 3, Column: 7}.Location())
	assert.Equal(t, "3", Problem{Line: 3}.Location())
}
