package code

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"

	"loom/internal/branch"
	"loom/internal/files"
	"loom/internal/jsx"
	"loom/internal/models"
)

const pageSource = `export default function Page() {
  return (
    <div className="p-2" data-oid="root">
      <h1 className="font-bold" data-oid="e1">Hello</h1>
      <p data-oid="e2">World</p>
    </div>
  );
}
`

const otherSource = `export function Card() {
  return <section data-oid="card">Card</section>;
}
`

// fakeEditor is an in-memory branch editor that indexes oids by parsing
// every file it holds.
type fakeEditor struct {
	mu     sync.Mutex
	files  map[string]string
	writes []string
}

func newFakeEditor(contents map[string]string) *fakeEditor {
	return &fakeEditor{files: contents}
}

func (f *fakeEditor) ReadFile(ctx context.Context, p string) (*files.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[p]
	if !ok {
		return nil, files.ErrNotFound
	}
	return &files.File{Path: p, Content: []byte(content), Binary: files.IsBinary(p, []byte(content))}, nil
}

func (f *fakeEditor) WriteFile(ctx context.Context, p string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[p] = string(content)
	f.writes = append(f.writes, p)
	return nil
}

func (f *fakeEditor) ElementMetadata(ctx context.Context, oid string) (*jsx.ElementMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parser := jsx.NewParser()
	for p, content := range f.files {
		if !jsx.IsJSXFile(p) {
			continue
		}
		doc, err := parser.Parse(p, []byte(content))
		if err != nil {
			continue
		}
		for _, m := range doc.Metadata() {
			if m.OID == oid {
				return &m, nil
			}
		}
	}
	return nil, nil
}

func newManager(t *testing.T, contents map[string]string, opts ...Option) (*Manager, *fakeEditor, *branch.Branch) {
	t.Helper()
	ed := newFakeEditor(contents)
	reg := branch.NewRegistry()
	b := reg.Add("main", ed)
	return NewManager(reg, opts...), ed, b
}

func strPtr(s string) *string { return &s }

func TestWrite_UpdateStyle(t *testing.T) {
	m, ed, _ := newManager(t, map[string]string{"app/page.tsx": pageSource})

	action := models.UpdateStyle{Targets: []models.StyleTarget{{
		Target: models.Target{OID: "e1"},
		Change: models.Change[models.StyleMap]{
			Original: models.StyleMap{"color": {Value: "red", Type: models.StyleChangeValue}},
			Updated:  models.StyleMap{"color": {Value: "blue", Type: models.StyleChangeValue}},
		},
	}}}
	if err := m.Write(context.Background(), action); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	want := strings.Replace(pageSource, `className="font-bold"`, `className="font-bold text-[blue]"`, 1)
	if got := ed.files["app/page.tsx"]; got != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", got, want)
	}
}

func TestWrite_RemoveElement(t *testing.T) {
	m, ed, _ := newManager(t, map[string]string{"app/page.tsx": pageSource})

	action := models.RemoveElement{
		Targets:  []models.Target{{OID: "e2"}},
		Location: models.ActionLocation{Type: models.LocationIndex, TargetOID: "root", Index: 1},
		Element:  models.ActionElement{TagName: "p", OID: "e2"},
	}
	diffs, err := m.Diffs(context.Background(), action)
	if err != nil {
		t.Fatalf("Diffs failed: %v", err)
	}
	if len(diffs) != 1 || diffs[0].Original != pageSource {
		t.Fatalf("unexpected diffs %+v", diffs)
	}
	want := strings.Replace(pageSource, "\n      <p data-oid=\"e2\">World</p>", "", 1)
	if diffs[0].Generated != want {
		t.Errorf("unexpected generated:\n%s\nwant:\n%s", diffs[0].Generated, want)
	}
	if len(ed.writes) != 0 {
		t.Error("expected Diffs not to write")
	}

	if err := m.Write(context.Background(), action); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if ed.files["app/page.tsx"] != want {
		t.Errorf("unexpected written file:\n%s", ed.files["app/page.tsx"])
	}
}

func TestWrite_InsertElement(t *testing.T) {
	m, ed, _ := newManager(t, map[string]string{"app/page.tsx": pageSource})

	action := models.InsertElement{
		Location: models.ActionLocation{Type: models.LocationAppend, TargetOID: "root"},
		Element: models.ActionElement{
			TagName:     "span",
			OID:         "new1",
			Attributes:  map[string]string{"className": "mt-2"},
			Styles:      map[string]string{"color": "red"},
			TextContent: strPtr("Added"),
		},
	}
	if err := m.Write(context.Background(), action); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got := ed.files["app/page.tsx"]
	if !strings.Contains(got, `<span className="mt-2 text-[red]" data-oid="new1">Added</span>`) {
		t.Errorf("expected inserted span:\n%s", got)
	}
	if strings.Index(got, "new1") < strings.Index(got, "e2") {
		t.Errorf("expected span appended after e2:\n%s", got)
	}
}

func TestWrite_BatchesPerFile(t *testing.T) {
	ed := newFakeEditor(map[string]string{
		"app/page.tsx": pageSource,
		"app/card.tsx": otherSource,
	})
	reg := branch.NewRegistry()
	reg.Add("main", ed)
	b := NewBuilder(nil)

	reqs, err := b.BuildRequests(
		models.EditText{Targets: []models.Target{{OID: "e1"}}, NewContent: "Hi"},
		models.EditText{Targets: []models.Target{{OID: "card"}}, NewContent: "Deck"},
		models.UpdateStyle{Targets: []models.StyleTarget{{
			Target: models.Target{OID: "e1"},
			Change: models.Change[models.StyleMap]{Updated: models.StyleMap{"padding": {Value: "8px"}}},
		}}},
	)
	if err != nil {
		t.Fatalf("BuildRequests failed: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected one request per oid, got %d", len(reqs))
	}

	groups, err := GroupByFile(context.Background(), reg, reqs)
	if err != nil {
		t.Fatalf("GroupByFile failed: %v", err)
	}
	if groups.Len() != 2 {
		t.Fatalf("expected 2 groups, got %d", groups.Len())
	}
	if g := groups.Groups()[0]; g.Key != (FileKey{BranchID: "main", Path: "app/page.tsx"}) {
		t.Errorf("expected page group first, got %+v", g.Key)
	}

	diffs, err := ProcessGroupedRequests(context.Background(), jsx.NewParser(), groups, nil)
	if err != nil {
		t.Fatalf("ProcessGroupedRequests failed: %v", err)
	}
	if len(diffs) != 2 || diffs[0].Path != "app/page.tsx" || diffs[1].Path != "app/card.tsx" {
		t.Fatalf("unexpected diffs %+v", diffs)
	}
	if !strings.Contains(diffs[0].Generated, `<h1 className="font-bold p-2" data-oid="e1">Hi</h1>`) {
		t.Errorf("unexpected page output:\n%s", diffs[0].Generated)
	}
	if !strings.Contains(diffs[1].Generated, `>Deck</section>`) {
		t.Errorf("unexpected card output:\n%s", diffs[1].Generated)
	}

	if err := WriteDiffs(context.Background(), diffs, groups); err != nil {
		t.Fatalf("WriteDiffs failed: %v", err)
	}
	if len(ed.writes) != 2 {
		t.Errorf("expected 2 writes, got %v", ed.writes)
	}
}

func TestWriteDiffs_NoGroup(t *testing.T) {
	groups := &FileToRequests{byKey: map[FileKey]*FileGroup{}}
	err := WriteDiffs(context.Background(), []models.CodeDiff{{Path: "x.tsx", Original: "a", Generated: "b"}}, groups)
	if !errors.Is(err, ErrNoRequestGroup) {
		t.Errorf("expected ErrNoRequestGroup, got %v", err)
	}
}

func TestWrite_ErrorsRecordedAndNotified(t *testing.T) {
	var notified []branch.CodeError
	m, _, b := newManager(t, map[string]string{"app/page.tsx": pageSource},
		WithNotifier(NotifierFunc(func(ctx context.Context, ce branch.CodeError) {
			notified = append(notified, ce)
		})))

	tests := []struct {
		name   string
		action models.Action
		want   error
	}{
		{"style without oid", models.UpdateStyle{Targets: []models.StyleTarget{{}}}, ErrNoOID},
		{"insert without target", models.InsertElement{Element: models.ActionElement{TagName: "div"}}, ErrNoTargetOID},
		{"unknown oid", models.EditText{Targets: []models.Target{{OID: "ghost"}}, NewContent: "x"}, ErrMetadataNotFound},
		{"unknown branch", models.EditText{Targets: []models.Target{{OID: "e1", BranchID: "nope"}}, NewContent: "x"}, branch.ErrNoBranch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.Write(context.Background(), tt.action); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	// The unknown branch cannot record its own error.
	if n := len(b.Errors()); n != 3 {
		t.Errorf("expected 3 recorded errors, got %d", n)
	}
	if len(notified) != 3 {
		t.Errorf("expected 3 notifications, got %d", len(notified))
	}
	if b.Errors()[0].Action != models.KindUpdateStyle {
		t.Errorf("unexpected first error %+v", b.Errors()[0])
	}
}

func TestWrite_BinaryFile(t *testing.T) {
	ed := newFakeEditor(map[string]string{"logo.png": "\x00\x01"})
	reg := branch.NewRegistry()
	reg.Add("main", binaryMeta{ed})

	reqs := []*models.CodeDiffRequest{models.NewCodeDiffRequest("img", "")}
	if _, err := GroupByFile(context.Background(), reg, reqs); !errors.Is(err, ErrBinaryFile) {
		t.Errorf("expected ErrBinaryFile, got %v", err)
	}
}

// binaryMeta resolves every oid to logo.png.
type binaryMeta struct{ *fakeEditor }

func (b binaryMeta) ElementMetadata(ctx context.Context, oid string) (*jsx.ElementMetadata, error) {
	return &jsx.ElementMetadata{OID: oid, Path: "logo.png"}, nil
}

func TestWrite_WriteCode(t *testing.T) {
	m, ed, _ := newManager(t, map[string]string{"app/page.tsx": pageSource})

	action := models.WriteCode{Diffs: []models.CodeDiff{{Path: "app/new.tsx", Original: "", Generated: "export {}\n"}}}
	if err := m.Write(context.Background(), action); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if ed.files["app/new.tsx"] != "export {}\n" {
		t.Errorf("expected diff written, got %q", ed.files["app/new.tsx"])
	}
	if _, err := NewBuilder(nil).BuildRequests(action); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("expected ErrNotImplemented from builder, got %v", err)
	}
}

func TestWrite_InsertImage(t *testing.T) {
	m, ed, _ := newManager(t, map[string]string{"app/page.tsx": pageSource})

	img := models.ImageContent{
		FileName: "hero.png",
		MimeType: "image/png",
		Content:  "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("PNGDATA")),
	}
	if err := m.Write(context.Background(), models.InsertImage{Targets: []models.Target{{OID: "root"}}, Image: img}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if ed.files["public/images/hero.png"] != "PNGDATA" {
		t.Errorf("expected image bytes written, got %q", ed.files["public/images/hero.png"])
	}
	if !strings.Contains(ed.files["app/page.tsx"], "bg-[url(/images/hero.png)]") {
		t.Errorf("expected image class:\n%s", ed.files["app/page.tsx"])
	}

	if err := m.Write(context.Background(), models.RemoveImage{Targets: []models.Target{{OID: "root"}}, Image: img}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if ed.files["app/page.tsx"] != pageSource {
		t.Errorf("expected image class removed:\n%s", ed.files["app/page.tsx"])
	}
}

func TestBuilder_EveryKindHandled(t *testing.T) {
	b := NewBuilder(nil)
	samples := map[models.Kind]models.Action{
		models.KindUpdateStyle:    models.UpdateStyle{},
		models.KindInsertElement:  models.InsertElement{Location: models.ActionLocation{TargetOID: "p"}},
		models.KindRemoveElement:  models.RemoveElement{Element: models.ActionElement{OID: "x"}},
		models.KindMoveElement:    models.MoveElement{},
		models.KindEditText:       models.EditText{},
		models.KindGroupElements:  models.GroupElements{Parent: models.Target{OID: "p"}},
		models.KindUngroupElement: models.UngroupElements{Parent: models.Target{OID: "p"}},
		models.KindInsertImage:    models.InsertImage{},
		models.KindRemoveImage:    models.RemoveImage{},
		models.KindWriteCode:      models.WriteCode{},
	}
	for _, kind := range models.Kinds() {
		a, ok := samples[kind]
		if !ok {
			t.Errorf("no sample for %s", kind)
			continue
		}
		_, err := b.BuildRequests(a)
		if kind == models.KindWriteCode {
			if !errors.Is(err, ErrNotImplemented) {
				t.Errorf("%s: expected ErrNotImplemented, got %v", kind, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error %v", kind, err)
		}
	}
}

func TestBuilder_GroupContainerStyles(t *testing.T) {
	b := NewBuilder(nil)
	reqs, err := b.BuildRequests(models.GroupElements{
		Parent: models.Target{OID: "root"},
		Container: models.ActionElement{
			TagName: "div",
			OID:     "g1",
			Styles:  map[string]string{"display": "flex"},
		},
		Children: []models.Target{{OID: "e1"}, {OID: "e2"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	g, ok := reqs[0].StructureChanges[0].(models.CodeGroup)
	if !ok {
		t.Fatalf("expected CodeGroup, got %T", reqs[0].StructureChanges[0])
	}
	if g.Container.Attributes["className"] != "flex" {
		t.Errorf("expected flex container, got %v", g.Container.Attributes)
	}
}

func TestUnifiedDiff(t *testing.T) {
	d := models.CodeDiff{
		Path:      "a.tsx",
		Original:  "one\ntwo\nthree\n",
		Generated: "one\n2\nthree\n",
	}
	got := UnifiedDiff(d, false)
	want := "--- a/a.tsx\n+++ b/a.tsx\n@@ -1,3 +1,3 @@\n one\n-two\n+2\n three\n"
	if got != want {
		t.Errorf("unexpected patch:\n%q\nwant:\n%q", got, want)
	}
	if UnifiedDiff(models.CodeDiff{Original: "x", Generated: "x"}, false) != "" {
		t.Error("expected empty patch for unchanged diff")
	}
}

func TestPublicImagePath(t *testing.T) {
	if got := PublicImagePath("../../etc/hero.png"); got != "/images/hero.png" {
		t.Errorf("unexpected path %q", got)
	}
}

func singleGroup(path, content string, reqs map[string]*models.CodeDiffRequest) *FileToRequests {
	g := &FileGroup{
		Key:      FileKey{BranchID: "main", Path: path},
		File:     &files.File{Path: path, Content: []byte(content)},
		Editor:   newFakeEditor(map[string]string{path: content}),
		Requests: reqs,
	}
	return &FileToRequests{groups: []*FileGroup{g}, byKey: map[FileKey]*FileGroup{g.Key: g}}
}

func TestProcessGroupedRequests_NoRequestsUnchanged(t *testing.T) {
	src := "export const A = () => <div data-oid=\"a\">A</div>;   \r\nexport const B = 1;"
	groups := singleGroup("app/a.tsx", src, map[string]*models.CodeDiffRequest{})

	diffs, err := ProcessGroupedRequests(context.Background(), jsx.NewParser(), groups, nil)
	if err != nil {
		t.Fatalf("ProcessGroupedRequests failed: %v", err)
	}
	if len(diffs) != 1 {
		t.Fatalf("expected 1 diff, got %d", len(diffs))
	}
	if diffs[0].Changed() {
		t.Errorf("formatting-only difference reported as a change:\noriginal  %q\ngenerated %q", diffs[0].Original, diffs[0].Generated)
	}

	ed := groups.Groups()[0].Editor.(*fakeEditor)
	if err := WriteDiffs(context.Background(), diffs, groups); err != nil {
		t.Fatalf("WriteDiffs failed: %v", err)
	}
	if len(ed.writes) != 0 {
		t.Errorf("unchanged file written: %v", ed.writes)
	}
}

func TestProcessGroupedRequests_DiffOnlyShowsEdit(t *testing.T) {
	src := strings.ReplaceAll(pageSource, "\n", "\r\n")
	req := models.NewCodeDiffRequest("e2", "main")
	req.TextContent = strPtr("Everyone")
	groups := singleGroup("app/page.tsx", src, map[string]*models.CodeDiffRequest{"e2": req})

	diffs, err := ProcessGroupedRequests(context.Background(), jsx.NewParser(), groups, nil)
	if err != nil {
		t.Fatalf("ProcessGroupedRequests failed: %v", err)
	}
	patch := UnifiedDiff(diffs[0], false)
	var removed, added int
	for _, line := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
		case strings.HasPrefix(line, "-"):
			removed++
		case strings.HasPrefix(line, "+"):
			added++
		}
	}
	if removed != 1 || added != 1 {
		t.Errorf("expected a one-line change, got -%d +%d:\n%s", removed, added, patch)
	}
}

func TestWrite_BranchWithoutEditor(t *testing.T) {
	reg := branch.NewRegistry()
	reg.Add("main", nil)
	m := NewManager(reg)

	actions := []models.Action{
		models.WriteCode{BranchID: "main", Diffs: []models.CodeDiff{{Path: "a.tsx", Generated: "x\n"}}},
		models.InsertImage{
			Targets: []models.Target{{OID: "e1", BranchID: "main"}},
			Image:   models.ImageContent{FileName: "a.png", Content: base64.StdEncoding.EncodeToString([]byte("png"))},
		},
	}
	for _, a := range actions {
		if err := m.Write(context.Background(), a); !errors.Is(err, branch.ErrNoBranch) {
			t.Errorf("%s: expected ErrNoBranch, got %v", a.Kind(), err)
		}
	}
}
