package scistore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/bft-labs/scistore/pkg/state"
	"github.com/bft-labs/scistore/sci/e3"
	"github.com/bft-labs/scistore/sci/ilthermo"
	"github.com/bft-labs/scistore/sci/molgraph"
	"github.com/bft-labs/scistore/sci/ndarray"
	"github.com/bft-labs/scistore/sci/settings"
)

const (
	settingsDoc = `
[input]
xc = "PBE"

[input.basis]
type = "DZP"
core = "None"
`
	moleculesDoc = `{
  "commonchem": {"version": 10},
  "defaults": {"atom": {"z": 6, "impHs": 0, "chg": 0, "nRad": 0, "isotope": 0}, "bond": {"bo": 1}},
  "molecules": [
    {"name": "ethene", "atoms": [{"impHs": 2}, {"impHs": 2}], "bonds": [{"atoms": [0, 1], "bo": 2}]},
    {"name": "methane", "atoms": [{"impHs": 4}]}
  ]
}`
	ilthermoDoc = `{
  "setid": "AbCdE",
  "ref": {"title": "Densities of ionic liquids"},
  "dhead": [["Temperature, K", null], ["Specific density, kg/m3", "Liquid"]],
  "data": [[["298.15"], ["1201.3"]]]
}`
	irrepsDoc = `{"type": "e3.Irreps", "state": "2x0e+3x1o"}`
	arrayDoc  = `{"type": "ndarray.Array", "state": {"dtype": "float64", "shape": [2, 2], "array": [[1.5, 2], [3.5, 4.5]]}}`
)

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
		want string
	}{
		{"toml", "run.toml", settingsDoc, KindSettings},
		{"toml upper case", "RUN.TOML", settingsDoc, KindSettings},
		{"molecules", "mols.json", moleculesDoc, KindMolecules},
		{"ilthermo", "set.json", ilthermoDoc, KindILThermo},
		{"value", "irreps.json", irrepsDoc, KindValue},
		{"value without state", "x.json", `{"type": "e3.Irreps"}`, KindUnsupported},
		{"numeric type", "x.json", `{"type": 3, "state": 1}`, KindUnsupported},
		{"not json", "x.json", `{"type"`, KindUnsupported},
		{"other json", "x.json", `{"what": 1}`, KindUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.file, []byte(tt.data)); got != tt.want {
				t.Errorf("Sniff() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatal(err)
	}

	t.Run("settings", func(t *testing.T) {
		vs, err := Decode(reg, "run.toml", []byte(settingsDoc))
		if err != nil {
			t.Fatal(err)
		}
		s, ok := vs[0].(*settings.Settings)
		if !ok {
			t.Fatalf("Decode() = %T", vs[0])
		}
		if v, _ := s.Get("input.basis.type"); v != "DZP" {
			t.Errorf("input.basis.type = %v", v)
		}
	})

	t.Run("molecules", func(t *testing.T) {
		vs, err := Decode(reg, "mols.json", []byte(moleculesDoc))
		if err != nil {
			t.Fatal(err)
		}
		if len(vs) != 2 {
			t.Fatalf("Decode() returned %d values", len(vs))
		}
		if _, ok := vs[1].(*molgraph.Mol); !ok {
			t.Errorf("Decode() = %T", vs[1])
		}
	})

	t.Run("ilthermo", func(t *testing.T) {
		vs, err := Decode(reg, "set.json", []byte(ilthermoDoc))
		if err != nil {
			t.Fatal(err)
		}
		d, ok := vs[0].(*ilthermo.Dataset)
		if !ok {
			t.Fatalf("Decode() = %T", vs[0])
		}
		if d.SetID != "AbCdE" {
			t.Errorf("SetID = %q", d.SetID)
		}
	})

	t.Run("ilthermo set id from file name", func(t *testing.T) {
		doc := `{"dhead": [["Temperature, K", null]], "data": [[["298.15"]]]}`
		vs, err := Decode(reg, "XyZ12.json", []byte(doc))
		if err != nil {
			t.Fatal(err)
		}
		if d := vs[0].(*ilthermo.Dataset); d.SetID != "XyZ12" {
			t.Errorf("SetID = %q", d.SetID)
		}
	})

	t.Run("irreps", func(t *testing.T) {
		vs, err := Decode(reg, "irreps.json", []byte(irrepsDoc))
		if err != nil {
			t.Fatal(err)
		}
		x, ok := vs[0].(e3.Irreps)
		if !ok {
			t.Fatalf("Decode() = %T", vs[0])
		}
		if x.Dim() != 11 {
			t.Errorf("Dim() = %d", x.Dim())
		}
	})

	t.Run("array", func(t *testing.T) {
		vs, err := Decode(reg, "a.json", []byte(arrayDoc))
		if err != nil {
			t.Fatal(err)
		}
		a, ok := vs[0].(*ndarray.Array)
		if !ok {
			t.Fatalf("Decode() = %T", vs[0])
		}
		if a.Kind() != ndarray.Float64 || a.Size() != 4 {
			t.Errorf("array = %v", a)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		if _, err := Decode(reg, "x.json", []byte(`{"what": 1}`)); !errors.Is(err, ErrDocument) {
			t.Errorf("Decode() error = %v", err)
		}
	})
}

func TestBuildErrors(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		key  string
		tree any
	}{
		{"unknown type", "no.Such", map[string]any{}},
		{"reference in document", "nn.Parameter", map[string]any{
			"data":          state.Ref(uuid.MustParse("2c8c1e39-7d4a-4c2b-b1f6-0e59a8d3c471")),
			"requires_grad": true,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build(reg, tt.key, tt.tree); err == nil {
				t.Error("Build() error = nil")
			}
		})
	}
}

func TestJSONValue(t *testing.T) {
	v := jsonValue(gjson.Parse(`{"i": 3, "f": 3.0, "e": 1e2, "s": "x", "l": [1, null, true]}`))
	m := v.(map[string]any)
	if _, ok := m["i"].(int64); !ok {
		t.Errorf("i = %T", m["i"])
	}
	if _, ok := m["f"].(float64); !ok {
		t.Errorf("f = %T", m["f"])
	}
	if _, ok := m["e"].(float64); !ok {
		t.Errorf("e = %T", m["e"])
	}
	l := m["l"].([]any)
	if len(l) != 3 || l[1] != nil || l[2] != true {
		t.Errorf("l = %v", l)
	}
}

func TestImportFile(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Backend = BackendMemory
	db, err := Open(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	path := filepath.Join(t.TempDir(), "mols.json")
	if err := os.WriteFile(path, []byte(moleculesDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	ids, err := db.ImportFile(ctx, path)
	if err != nil {
		t.Fatalf("ImportFile() failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ImportFile() returned %d ids", len(ids))
	}
	v, err := db.Load(ctx, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if m := v.(*molgraph.Mol); m.Name() != "ethene" {
		t.Errorf("Name() = %q", m.Name())
	}

	if _, err := db.ImportFile(ctx, filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("ImportFile() of a missing file succeeded")
	}
}
