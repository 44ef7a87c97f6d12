package ilthermo

import (
	"errors"
	"math"
	"slices"
	"testing"
)

const response = `{
  "ref": {"title": "Densities of 1-butyl-3-methylimidazolium salts", "full": "J. Chem. Eng. Data 2010"},
  "expmeth": "Vibrating tube method",
  "components": [{"idout": "ABcdEf", "name": "1-butyl-3-methylimidazolium tetrafluoroborate"}],
  "dhead": [["Temperature, K", null], ["Pressure, kPa", null], ["Specific density, kg/m3", "Liquid"]],
  "data": [
    [["298.15"], ["101.325"], ["1201.3", "0.5"]],
    [["308.15"], ["101.325"], ["1193.8"]]
  ]
}`

func TestParse(t *testing.T) {
	d, err := Parse("AbCdE", []byte(response))
	if err != nil {
		t.Fatal(err)
	}
	wantHeader := []string{"Temperature, K", "Pressure, kPa", "Specific density, kg/m3", "Delta(Specific density), kg/m3"}
	if !slices.Equal(d.HeaderList, wantHeader) {
		t.Errorf("HeaderList = %q", d.HeaderList)
	}
	if !slices.Equal(d.PhysProps, []string{"Temperature", "Pressure", "Specific density", "Delta(Specific density)"}) {
		t.Errorf("PhysProps = %q", d.PhysProps)
	}
	if !slices.Equal(d.PhysUnits, []string{"K", "kPa", "kg/m3", "kg/m3"}) {
		t.Errorf("PhysUnits = %q", d.PhysUnits)
	}
	if !slices.Equal(d.Phases, []string{"", "", "Liquid", "Liquid"}) {
		t.Errorf("Phases = %q", d.Phases)
	}
	if rows, cols := d.Shape(); rows != 2 || cols != 4 {
		t.Errorf("Shape() = %d, %d", rows, cols)
	}
	if d.Data[0][3] != 0.5 || !math.IsNaN(d.Data[1][3]) {
		t.Errorf("uncertainty column = %v, %v", d.Data[0][3], d.Data[1][3])
	}
	temps, err := d.Column("Temperature, K")
	if err != nil || !slices.Equal(temps, []float64{298.15, 308.15}) {
		t.Errorf("Column(Temperature) = %v, %v", temps, err)
	}
	if _, err := d.Column("Viscosity, Pa*s"); err == nil {
		t.Error("Column found a missing header")
	}
	if got := d.Citation(); got != "Densities of 1-butyl-3-methylimidazolium salts" {
		t.Errorf("Citation() = %q", got)
	}
	if _, ok := d.SetDict["data"]; ok {
		t.Error("SetDict keeps the data rows")
	}
	if d.SetDict["expmeth"] != "Vibrating tube method" {
		t.Errorf("SetDict = %v", d.SetDict)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"dhead": [`},
		{"no header", `{"data": []}`},
		{"short row", `{"dhead": [["T, K", null], ["P, kPa", null]], "data": [[["1"]]]}`},
		{"not a number", `{"dhead": [["T, K", null]], "data": [[["warm"]]]}`},
		{"nested cell", `{"dhead": [["T, K", null]], "data": [[[{"v": 1}]]]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse("x", []byte(tt.body)); !errors.Is(err, ErrFormat) {
				t.Errorf("Parse() error = %v", err)
			}
		})
	}
}

func TestValidateAndEqual(t *testing.T) {
	a, _ := Parse("AbCdE", []byte(response))
	b, _ := Parse("AbCdE", []byte(response))
	if !a.Equal(b) {
		t.Fatal("equal data sets differ")
	}
	b.Data[0][0] = 299
	if a.Equal(b) {
		t.Error("data ignored")
	}
	b, _ = Parse("AbCdE", []byte(response))
	b.SetDict["expmeth"] = "Pycnometer"
	if a.Equal(b) {
		t.Error("SetDict ignored")
	}

	b.Phases = b.Phases[:1]
	if err := b.Validate(); !errors.Is(err, ErrFormat) {
		t.Errorf("Validate() = %v", err)
	}
	b, _ = Parse("AbCdE", []byte(response))
	b.Data[1] = b.Data[1][:2]
	if err := b.Validate(); !errors.Is(err, ErrFormat) {
		t.Errorf("Validate() = %v", err)
	}
}
