package main

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRegenerateThenGet(t *testing.T) {
	t.Setenv("CLUSTERWATCH_STORAGE_BACKEND", "file")
	t.Setenv("CLUSTERWATCH_STORAGE_DATA_DIR", t.TempDir())
	t.Setenv("CLUSTERWATCH_GENERATOR_SPAN_DAYS", "2")
	t.Setenv("CLUSTERWATCH_LOG_LEVEL", "error")

	out, err := run(t, "regenerate", "c1")
	require.NoError(t, err)
	require.Contains(t, out, `"entityId": "c1"`)

	out, err = run(t, "get", "c1", "--range", "1h", "--csv")
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewBufferString(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 61)

	_, err = run(t, "get", "c1", "--range", "1y", "--csv=false")
	require.ErrorContains(t, err, "timeRange")

	_, err = run(t, "get", "unknown", "--range", "1h")
	require.ErrorContains(t, err, "not generated yet")
}
