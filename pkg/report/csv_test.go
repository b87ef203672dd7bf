package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCSV(t *testing.T) {
	records := []map[string]any{
		{"displayName": "Dana Reyes", "signInStatus": "Enabled", "isArchived": false},
		{"displayName": "Lee, Sam", "signInStatus": "Disabled", "isArchived": true},
	}

	out, err := RenderCSV([]string{"displayName", "signInStatus", "isArchived"}, records)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "displayName,signInStatus,isArchived", lines[0])
	assert.Equal(t, "Dana Reyes,Enabled,false", lines[1])
	// Embedded commas are quoted.
	assert.Equal(t, `"Lee, Sam",Disabled,true`, lines[2])
}

func TestRenderCSV_InferredFields(t *testing.T) {
	records := []map[string]any{
		{"b": 1, "a": "x"},
		{"c": nil},
	}

	out, err := RenderCSV(nil, records)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "a,b,c", lines[0])
	assert.Equal(t, "x,1,", lines[1])
	assert.Equal(t, ",,", lines[2])
}

func TestRenderCSV_NoRecords(t *testing.T) {
	_, err := RenderCSV(nil, nil)
	assert.Error(t, err)
}

func TestExportCSVFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	records := []map[string]any{{"id": "u1"}}

	path, err := ExportCSVFile(dir, []string{"id"}, records, "all_users_report")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(filepath.Base(path), "all_users_report_"))
	assert.True(t, strings.HasSuffix(path, ".csv"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "u1")
}

func TestExportCSVString(t *testing.T) {
	records := []map[string]any{{"id": "g1"}}

	content, filename, err := ExportCSVString([]string{"id"}, records, "all_groups_report")
	require.NoError(t, err)
	assert.Contains(t, content, "g1")
	assert.Regexp(t, `^all_groups_report_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}\.csv$`, filename)
}

func TestExportExcel(t *testing.T) {
	records := []map[string]any{
		{"id": "t1", "displayName": "Platform"},
		{"id": "t2", "displayName": "Support"},
	}

	var buf bytes.Buffer
	require.NoError(t, ExportExcel(&buf, []string{"id", "displayName"}, records))
	assert.NotZero(t, buf.Len())

	assert.Error(t, ExportExcel(&buf, nil, nil))
}
