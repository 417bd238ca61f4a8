package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSchema(t *testing.T) {
	out := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, writeSchema(out))

	data, err := os.ReadFile(out) //nolint:gosec // test file
	require.NoError(t, err)
	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Contains(t, schema, "$defs")
	assert.Contains(t, string(data), "quiet_hours")
}

func TestWriteSchema_BadPath(t *testing.T) {
	err := writeSchema(filepath.Join(t.TempDir(), "missing", "schema.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write")
}
