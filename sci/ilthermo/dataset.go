// Package ilthermo holds ionic liquid property data sets as served by the
// ILThermo database.
package ilthermo

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrFormat = errors.New("ilthermo: malformed data set")

// Dataset is one ILThermo data set: a numeric table with a header naming
// the physical property, unit and phase of every column.
type Dataset struct {
	SetID      string
	SetDict    map[string]any
	Data       [][]float64
	HeaderList []string
	PhysProps  []string
	PhysUnits  []string
	Phases     []string
}

// Shape returns the number of points and columns.
func (d *Dataset) Shape() (rows, cols int) {
	return len(d.Data), len(d.HeaderList)
}

// Column returns the values of the column whose header is name.
func (d *Dataset) Column(name string) ([]float64, error) {
	i := slices.Index(d.HeaderList, name)
	if i < 0 {
		return nil, fmt.Errorf("ilthermo: no column %q in data set %s", name, d.SetID)
	}
	out := make([]float64, len(d.Data))
	for r, row := range d.Data {
		out[r] = row[i]
	}
	return out, nil
}

// Citation returns the reference title from the raw data set, if present.
func (d *Dataset) Citation() string {
	ref, _ := d.SetDict["ref"].(map[string]any)
	title, _ := ref["title"].(string)
	return title
}

// Validate checks that every header list and row agrees on the column count.
func (d *Dataset) Validate() error {
	n := len(d.HeaderList)
	if len(d.PhysProps) != n || len(d.PhysUnits) != n || len(d.Phases) != n {
		return fmt.Errorf("%w: header %d, properties %d, units %d, phases %d",
			ErrFormat, n, len(d.PhysProps), len(d.PhysUnits), len(d.Phases))
	}
	for i, row := range d.Data {
		if len(row) != n {
			return fmt.Errorf("%w: row %d has %d values for %d columns", ErrFormat, i, len(row), n)
		}
	}
	return nil
}

// Equal compares every field. NaN equals NaN.
func (d *Dataset) Equal(o *Dataset) bool {
	if d == nil || o == nil {
		return d == o
	}
	return d.SetID == o.SetID &&
		slices.Equal(d.HeaderList, o.HeaderList) &&
		slices.Equal(d.PhysProps, o.PhysProps) &&
		slices.Equal(d.PhysUnits, o.PhysUnits) &&
		slices.Equal(d.Phases, o.Phases) &&
		slices.EqualFunc(d.Data, o.Data, func(a, b []float64) bool {
			return slices.EqualFunc(a, b, func(x, y float64) bool {
				return x == y || (math.IsNaN(x) && math.IsNaN(y))
			})
		}) &&
		treeEqual(d.SetDict, o.SetDict)
}

func (d *Dataset) String() string {
	rows, cols := d.Shape()
	return fmt.Sprintf("Dataset(%s, %d points, %s)", d.SetID, rows, strings.Join(d.PhysProps[:min(cols, len(d.PhysProps))], ", "))
}

// Parse reads a data set response: the "dhead" header of
// [name, phase] pairs and "data" rows of [value] or [value, uncertainty]
// cells. A column with an uncertainty in any row gains a "Delta(...)"
// column right after it.
func Parse(setID string, body []byte) (*Dataset, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: not JSON", ErrFormat)
	}
	doc := gjson.ParseBytes(body)
	dhead := doc.Get("dhead").Array()
	if len(dhead) == 0 {
		return nil, fmt.Errorf("%w: missing dhead", ErrFormat)
	}
	rows := doc.Get("data").Array()

	hasDelta := make([]bool, len(dhead))
	for _, row := range rows {
		cells := row.Array()
		if len(cells) != len(dhead) {
			return nil, fmt.Errorf("%w: row of %d cells for %d header entries", ErrFormat, len(cells), len(dhead))
		}
		for j, cell := range cells {
			if len(cell.Array()) > 1 {
				hasDelta[j] = true
			}
		}
	}

	d := &Dataset{SetID: setID}
	for j, h := range dhead {
		name := h.Get("0").String()
		prop, unit := splitHeader(name)
		phase := h.Get("1").String()
		d.HeaderList = append(d.HeaderList, name)
		d.PhysProps = append(d.PhysProps, prop)
		d.PhysUnits = append(d.PhysUnits, unit)
		d.Phases = append(d.Phases, phase)
		if hasDelta[j] {
			d.HeaderList = append(d.HeaderList, "Delta("+prop+"), "+unit)
			d.PhysProps = append(d.PhysProps, "Delta("+prop+")")
			d.PhysUnits = append(d.PhysUnits, unit)
			d.Phases = append(d.Phases, phase)
		}
	}

	for i, row := range rows {
		var out []float64
		for j, cell := range row.Array() {
			parts := cell.Array()
			v, err := number(parts, 0)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i, j, err)
			}
			out = append(out, v)
			if hasDelta[j] {
				dv, err := number(parts, 1)
				if err != nil {
					return nil, fmt.Errorf("row %d column %d: %w", i, j, err)
				}
				out = append(out, dv)
			}
		}
		d.Data = append(d.Data, out)
	}

	raw, ok := doc.Value().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top level is not an object", ErrFormat)
	}
	delete(raw, "data")
	d.SetDict = raw
	return d, d.Validate()
}

// splitHeader splits "Density, kg/m3" into property and unit.
func splitHeader(h string) (prop, unit string) {
	i := strings.LastIndex(h, ",")
	if i < 0 {
		return strings.TrimSpace(h), ""
	}
	return strings.TrimSpace(h[:i]), strings.TrimSpace(h[i+1:])
}

// number reads cell part i; a missing uncertainty is NaN.
func number(parts []gjson.Result, i int) (float64, error) {
	if i >= len(parts) {
		return math.NaN(), nil
	}
	p := parts[i]
	switch p.Type {
	case gjson.Number:
		return p.Float(), nil
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(p.Str), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrFormat, p.Str)
		}
		return f, nil
	case gjson.Null:
		return math.NaN(), nil
	}
	return 0, fmt.Errorf("%w: unexpected cell %s", ErrFormat, p.Raw)
}

func treeEqual(a, b any) bool {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		return ok && (x == y || (math.IsNaN(x) && math.IsNaN(y)))
	case []any:
		y, ok := b.([]any)
		return ok && slices.EqualFunc(x, y, treeEqual)
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			if yv, ok := y[k]; !ok || !treeEqual(xv, yv) {
				return false
			}
		}
		return true
	}
	return a == b
}
