package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"hedgehog-learn/internal/hubspot"
)

func TestColumns(t *testing.T) {
	rows := []hubspot.Row{
		{Values: map[string]any{"tags": "a", "difficulty": 1}},
		{Values: map[string]any{"estimated_minutes": 30.0, "tags": "b"}},
	}
	want := []string{"difficulty", "estimated_minutes", "tags"}
	if diff := cmp.Diff(want, Columns(rows)); diff != "" {
		t.Errorf("Columns mismatch (-want +got):\n%s", diff)
	}
	require.Empty(t, Columns(nil))
}

func TestWriteRowsCSV(t *testing.T) {
	rows := []hubspot.Row{
		{
			ID: "1", Path: "intro", Name: "Intro, part 1",
			Values: map[string]any{
				"difficulty":        map[string]any{"id": "1", "name": "beginner", "type": "option"},
				"estimated_minutes": 45.0,
				"module_slugs_json": []any{"a", "b"},
			},
		},
		{
			ID: "2", Path: "fabric", Name: "Fabric",
			Values: map[string]any{"archived": true, "meta_description": "  Line\r\nbreak "},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRowsCSV(&buf, rows))

	got, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)

	want := [][]string{
		{"id", "path", "name", "archived", "difficulty", "estimated_minutes", "meta_description", "module_slugs_json"},
		{"1", "intro", "Intro, part 1", "", "beginner", "45", "", `["a","b"]`},
		{"2", "fabric", "Fabric", "true", "", "", "Line\nbreak", ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteRowsCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRowsCSV(&buf, nil))
	require.Equal(t, "id,path,name\r\n", buf.String())
}
