package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"loom/internal/models"
)

const page = `export default function Page() {
  return (
    <div className="p-2" data-oid="root">
      <h1 data-oid="title">Hello</h1>
    </div>
  );
}
`

// run executes the CLI with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	applyDryRun, applyRevert, applyColor = false, false, false
	indexLookup = ""
	dirFlag, configFlag, branchFlag = "", "", ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "app"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app", "page.tsx"), []byte(page), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != "loom "+Version {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestDecodeActions(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
		want int
	}{
		{"single json", "a.json", `{"type": "edit-text", "targets": [{"oid": "t"}], "newContent": "x"}`, 1},
		{"json array", "a.json", ` [{"type": "edit-text"}, {"type": "move-element"}]`, 2},
		{"yaml", "a.yml", "- type: edit-text\n  newContent: x\n- type: remove-image\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions, err := decodeActions(tt.file, []byte(tt.data))
			if err != nil {
				t.Fatalf("decodeActions: %v", err)
			}
			if len(actions) != tt.want {
				t.Errorf("got %d actions, want %d", len(actions), tt.want)
			}
		})
	}

	if _, err := decodeActions("a.json", []byte(`{"type": "fly"}`)); err == nil {
		t.Error("expected error for unknown action type")
	}
}

func TestInverses(t *testing.T) {
	actions := []models.Action{
		models.EditText{Targets: []models.Target{{OID: "a"}}, OriginalContent: "1", NewContent: "2"},
		models.EditText{Targets: []models.Target{{OID: "a"}}, OriginalContent: "2", NewContent: "3"},
	}
	inv, err := inverses(actions)
	if err != nil {
		t.Fatal(err)
	}
	if len(inv) != 2 {
		t.Fatalf("got %d inverses", len(inv))
	}
	first := inv[0].(models.EditText)
	if first.OriginalContent != "3" || first.NewContent != "2" {
		t.Errorf("first inverse = %+v, want 3 -> 2", first)
	}
}

func TestApplyAndRevert(t *testing.T) {
	dir := writeProject(t)
	actions := filepath.Join(t.TempDir(), "edits.json")
	edit := `[{"type": "edit-text", "targets": [{"oid": "title"}], "originalContent": "Hello", "newContent": "Goodbye"}]`
	if err := os.WriteFile(actions, []byte(edit), 0o644); err != nil {
		t.Fatal(err)
	}
	pagePath := filepath.Join(dir, "app", "page.tsx")

	out, err := run(t, "apply", "--dir", dir, "--dry-run", actions)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(out, "+++ b/app/page.tsx") || !strings.Contains(out, "Goodbye") {
		t.Errorf("dry run output missing diff: %q", out)
	}
	if strings.Contains(readFile(t, pagePath), "Goodbye") {
		t.Fatal("dry run wrote the file")
	}

	if _, err := run(t, "apply", "--dir", dir, actions); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := readFile(t, pagePath); !strings.Contains(got, "Goodbye") {
		t.Errorf("apply did not edit text:\n%s", got)
	}

	if _, err := run(t, "apply", "--dir", dir, "--revert", actions); err != nil {
		t.Fatalf("revert: %v", err)
	}
	got := readFile(t, pagePath)
	if strings.Contains(got, "Goodbye") || !strings.Contains(got, "Hello") {
		t.Errorf("revert did not restore text:\n%s", got)
	}
}

func TestApply_UnknownOID(t *testing.T) {
	dir := writeProject(t)
	actions := filepath.Join(t.TempDir(), "edits.yaml")
	edit := "- type: edit-text\n  targets:\n    - oid: missing\n  newContent: x\n"
	if err := os.WriteFile(actions, []byte(edit), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "apply", "--dir", dir, actions); err == nil {
		t.Error("expected error for unknown oid")
	}
}

func TestStampAndIndex(t *testing.T) {
	dir := t.TempDir()
	src := "export const Nav = () => <nav><a href=\"/\">Home</a></nav>;\n"
	if err := os.WriteFile(filepath.Join(dir, "nav.tsx"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "stamp", "--dir", dir)
	if err != nil {
		t.Fatalf("stamp: %v", err)
	}
	if !strings.Contains(out, "nav.tsx") || !strings.Contains(out, "Stamped 1 file(s)") {
		t.Errorf("unexpected stamp output: %q", out)
	}
	if got := readFile(t, filepath.Join(dir, "nav.tsx")); !strings.Contains(got, "data-oid=") {
		t.Errorf("no oids stamped:\n%s", got)
	}

	out, err = run(t, "stamp", "--dir", dir)
	if err != nil {
		t.Fatalf("second stamp: %v", err)
	}
	if !strings.Contains(out, "Stamped 0 file(s)") {
		t.Errorf("second stamp changed files: %q", out)
	}

	out, err = run(t, "index", "--dir", dir)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if !strings.Contains(out, "Indexed 1 file(s)") {
		t.Errorf("unexpected index output: %q", out)
	}
	if _, err := run(t, "index", "--dir", dir, "--lookup", "nope"); err == nil {
		t.Error("expected error for unknown oid")
	}
}

func TestSync_RequiresRemote(t *testing.T) {
	t.Setenv("LOOM_REMOTE_URL", "")
	if _, err := run(t, "sync", "--dir", t.TempDir()); err == nil || !strings.Contains(err.Error(), "no sandbox URL") {
		t.Errorf("expected missing URL error, got %v", err)
	}
}
