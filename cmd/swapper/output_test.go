package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJQFilterMatching(t *testing.T) {
	tests := []struct {
		name        string
		event       string
		jqFilters   []string
		expectMatch bool
	}{
		{
			name:        "status match",
			event:       `{"id": "a", "status": "confirmed"}`,
			jqFilters:   []string{`.status == "confirmed"`},
			expectMatch: true,
		},
		{
			name:        "status mismatch",
			event:       `{"id": "a", "status": "failed"}`,
			jqFilters:   []string{`.status == "confirmed"`},
			expectMatch: false,
		},
		{
			name:        "all filters must match",
			event:       `{"status": "confirmed", "amount": 25}`,
			jqFilters:   []string{`.status == "confirmed"`, `.amount > 50`},
			expectMatch: false,
		},
		{
			name:        "contains",
			event:       `{"input_mint": "So11111111111111111111111111111111111111112"}`,
			jqFilters:   []string{`. | contains({input_mint: "So111"})`},
			expectMatch: true,
		},
		{
			name:        "missing field is null and falsy",
			event:       `{"status": "confirmed"}`,
			jqFilters:   []string{`.signature`},
			expectMatch: false,
		},
		{
			name:        "non-boolean result is truthy",
			event:       `{"signature": "5VERv8"}`,
			jqFilters:   []string{`.signature`},
			expectMatch: true,
		},
		{
			name:        "runtime error does not match",
			event:       `{"amount": 25}`,
			jqFilters:   []string{`.amount | keys`},
			expectMatch: false,
		},
		{
			name:        "empty output does not match",
			event:       `{"amount": 25}`,
			jqFilters:   []string{`empty`},
			expectMatch: false,
		},
		{
			name:        "no filters match everything",
			event:       `{}`,
			expectMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes, err := compileJQ(tt.jqFilters)
			require.NoError(t, err)

			var v interface{}
			require.NoError(t, json.Unmarshal([]byte(tt.event), &v))
			assert.Equal(t, tt.expectMatch, matchesAll(codes, v))
		})
	}
}

func TestCompileJQ_Invalid(t *testing.T) {
	_, err := compileJQ([]string{".status ==", ".ok"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `failed to parse jq filter ".status =="`)
}

func TestRunJQ_Pipeline(t *testing.T) {
	codes, err := compileJQ([]string{`.swaps[]`, `select(.status == "confirmed")`, `.id`})
	require.NoError(t, err)

	in, err := jqValue(map[string]interface{}{
		"swaps": []map[string]string{
			{"id": "a", "status": "confirmed"},
			{"id": "b", "status": "failed"},
			{"id": "c", "status": "confirmed"},
		},
	})
	require.NoError(t, err)

	out, err := runJQ(codes, in)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "c"}, out)
}

func TestRunJQ_Error(t *testing.T) {
	codes, err := compileJQ([]string{`.amount | keys`})
	require.NoError(t, err)

	_, err = runJQ(codes, map[string]interface{}{"amount": 1.0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jq:")
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy(0.0))
	assert.True(t, isTruthy(""))
	assert.True(t, isTruthy([]interface{}{}))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"https://a", "https://b"}, splitList(" https://a, ,https://b ,"))
	assert.Nil(t, splitList(""))
}
