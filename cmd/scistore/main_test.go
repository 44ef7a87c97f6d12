package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/bft-labs/scistore"
	logAdapter "github.com/bft-labs/scistore/internal/adapters/log"
	"github.com/bft-labs/scistore/internal/cliconfig"
	"github.com/bft-labs/scistore/pkg/store"
)

const settingsDoc = `
[input]
xc = "PBE"

[input.basis]
type = "DZP"
`

// run executes the CLI against an fs archive in dir.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	a := &app{cfg: cliconfig.DefaultConfig(), logger: logAdapter.Nop()}
	root := a.rootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	base := []string{"--config", filepath.Join(dir, "absent.toml"), "--backend", "fs", "--dir", filepath.Join(dir, "archive"), "--log-level", "error"}
	root.SetArgs(append(args[:1:1], append(base, args[1:]...)...))
	err := root.Execute()
	return out.String(), err
}

func TestImportShowVerify(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "run.toml")
	if err := os.WriteFile(doc, []byte(settingsDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, dir, "import", doc)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		t.Fatalf("import output = %q", out)
	}
	id := fields[0]
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("import printed %q: %v", id, err)
	}

	out, err = run(t, dir, "show", id)
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if got := gjson.Get(out, "type").String(); got != "settings.Settings" {
		t.Errorf("type = %q", got)
	}
	if gjson.Get(out, "hash").String() == "" {
		t.Errorf("show output has no hash: %s", out)
	}

	out, err = run(t, dir, "show", id, "--no-hash", "--path", "id")
	if err != nil {
		t.Fatalf("show --path failed: %v", err)
	}
	if strings.TrimSpace(out) != `"`+id+`"` {
		t.Errorf("show --path id = %q", out)
	}

	out, err = run(t, dir, "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, id) {
		t.Errorf("list output misses %s:\n%s", id, out)
	}

	out, err = run(t, dir, "verify")
	if err != nil {
		t.Fatalf("verify failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok\t"+id) {
		t.Errorf("verify output = %q", out)
	}
}

func TestImportUnsupported(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "data.json")
	if err := os.WriteFile(doc, []byte(`{"what": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, dir, "import", doc); err == nil {
		t.Error("import of an unsupported document succeeded")
	}
}

func TestWatchRequiresDir(t *testing.T) {
	if _, err := run(t, t.TempDir(), "watch"); err == nil {
		t.Error("watch without a directory succeeded")
	}
}

func TestTypes(t *testing.T) {
	var out bytes.Buffer
	if err := writeTypes(&out, scistore.Types()); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != len(scistore.Types())+1 {
		t.Errorf("writeTypes printed %d lines", len(lines))
	}
	if !strings.Contains(out.String(), "ndarray.Array") {
		t.Error("ndarray.Array missing")
	}
}

func TestRenderInfo(t *testing.T) {
	info := store.Info{
		ID:       uuid.MustParse("0b5c0f2e-7a1d-4b8e-9f3a-2c6d8e1f4a70"),
		TypeName: "e3.Irreps",
		State:    "2x0e+3x1o",
	}
	tests := []struct {
		name    string
		hash    string
		path    string
		want    string
		wantErr bool
	}{
		{"whole document", "abc", "", "", false},
		{"state path", "", "state", `"2x0e+3x1o"`, false},
		{"hash path", "abc", "hash", `"abc"`, false},
		{"missing path", "", "hash", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := renderInfo(info, tt.hash, tt.path, false)
			if (err != nil) != tt.wantErr {
				t.Fatalf("renderInfo() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !gjson.ValidBytes(out) {
				t.Fatalf("renderInfo() = %s, not JSON", out)
			}
			if tt.want != "" && strings.TrimSpace(string(out)) != tt.want {
				t.Errorf("renderInfo() = %s, want %s", out, tt.want)
			}
			if tt.path == "" && gjson.GetBytes(out, "type").String() != "e3.Irreps" {
				t.Errorf("renderInfo() = %s", out)
			}
		})
	}
}

func TestRenderNonFinite(t *testing.T) {
	info := store.Info{
		ID:       uuid.MustParse("4e7a2c1d-9b3f-4a6e-8d2c-1f5b7a9e3c80"),
		TypeName: "ilthermo.Dataset",
		State: map[string]any{
			"values": []any{1.5, math.NaN(), math.Inf(1), math.Inf(-1)},
			"nested": map[string]any{"missing": math.NaN()},
		},
	}
	out, err := renderInfo(info, "abc", "", false)
	if err != nil {
		t.Fatalf("renderInfo() error = %v", err)
	}
	if !gjson.ValidBytes(out) {
		t.Fatalf("renderInfo() = %s, not JSON", out)
	}
	var got []string
	for _, r := range gjson.GetBytes(out, "state.values").Array() {
		got = append(got, r.String())
	}
	if want := []string{"1.5", "NaN", "+Inf", "-Inf"}; !slices.Equal(got, want) {
		t.Errorf("state.values = %v, want %v", got, want)
	}
	if s := gjson.GetBytes(out, "state.nested.missing").String(); s != "NaN" {
		t.Errorf("state.nested.missing = %q", s)
	}
}
