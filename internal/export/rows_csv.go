package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"hedgehog-learn/internal/hubspot"
)

// baseHeader leads every export; value columns follow in sorted order.
var baseHeader = []string{"id", "path", "name"}

// Columns returns the sorted union of value columns across rows.
func Columns(rows []hubspot.Row) []string {
	seen := map[string]bool{}
	for _, r := range rows {
		for k := range r.Values {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// WriteRowsCSV writes HubDB rows as CSV. Missing values are left empty.
func WriteRowsCSV(w io.Writer, rows []hubspot.Row) error {
	cw := csv.NewWriter(w)
	// match typical spreadsheet imports
	cw.UseCRLF = true

	cols := Columns(rows)
	header := append(append([]string{}, baseHeader...), cols...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, r.ID, r.Path, r.Name)
		for _, c := range cols {
			v, err := cell(r.Values[c])
			if err != nil {
				return fmt.Errorf("export: row %s column %s: %w", r.ID, c, err)
			}
			rec = append(rec, v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// cell flattens a HubDB value. Select options export their name, other
// composite values export as compact JSON.
func cell(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return cleanString(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case map[string]any:
		if name, ok := t["name"].(string); ok {
			return name, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func cleanString(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}
