package importer

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode"
)

type row struct {
	line   int
	fields []string
}

// table is a header-indexed view over a CSV export
type table struct {
	header []string
	index  map[string][]int
	rows   []row
	// unreadable lines the csv reader rejected
	broken []RowError
}

func readTable(raw string) (*table, error) {
	raw = strings.TrimPrefix(raw, "\ufeff")

	r := csv.NewReader(strings.NewReader(raw))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.New("file is empty")
	}
	if err != nil {
		return nil, err
	}

	t := &table{header: header, index: make(map[string][]int, len(header))}
	for i, h := range header {
		key := normKey(h)
		t.index[key] = append(t.index[key], i)
	}

	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				t.broken = append(t.broken, RowError{Row: perr.StartLine, Message: perr.Err.Error()})
				continue
			}
			return nil, err
		}
		if blank(fields) {
			continue
		}
		line, _ := r.FieldPos(0)
		t.rows = append(t.rows, row{line: line, fields: fields})
	}

	return t, nil
}

// totalRows counts every data row, including the ones the csv reader rejected
func (t *table) totalRows() int {
	return len(t.rows) + len(t.broken)
}

// has reports whether any of the names is a column
func (t *table) has(names ...string) bool {
	_, ok := t.pos(names...)
	return ok
}

func (t *table) pos(names ...string) (int, bool) {
	for _, n := range names {
		if idx, ok := t.index[normKey(n)]; ok {
			return idx[0], true
		}
	}
	return 0, false
}

// get returns the trimmed value of the first matching column, or ""
func (t *table) get(r row, names ...string) string {
	i, ok := t.pos(names...)
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

// nth returns the value of the n-th (0-based) column carrying the name.
// Some reports repeat headers, e.g. open and close "Time".
func (t *table) nth(r row, name string, n int) string {
	idx := t.index[normKey(name)]
	if n >= len(idx) || idx[n] >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[idx[n]])
}

func headerSet(headers []string) map[string]int {
	set := make(map[string]int, len(headers))
	for _, h := range headers {
		set[normKey(h)]++
	}
	return set
}

func hasAll(set map[string]int, names ...string) bool {
	for _, n := range names {
		if set[normKey(n)] == 0 {
			return false
		}
	}
	return true
}

// normKey lowercases and drops everything but letters and digits, so
// "Fill ID", "fill_id" and "S / L" style headers compare equal to their
// compact forms
func normKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// headerLine reads just the header row of a raw export
func headerLine(raw string) ([]string, error) {
	raw = strings.TrimPrefix(raw, "\ufeff")
	r := csv.NewReader(strings.NewReader(raw))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r.Read()
}
