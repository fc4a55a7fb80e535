package history

import (
	"errors"
	"reflect"
	"testing"

	"loom/internal/models"
)

func styleAction(oid, from, to string) models.UpdateStyle {
	return models.UpdateStyle{Targets: []models.StyleTarget{{
		Target: models.Target{OID: oid},
		Change: models.Change[models.StyleMap]{
			Original: models.StyleMap{"color": {Value: from, Type: models.StyleChangeValue}},
			Updated:  models.StyleMap{"color": {Value: to, Type: models.StyleChangeValue}},
		},
	}}}
}

func TestUndo_ReverseOrder(t *testing.T) {
	h := New()
	pushed := []models.UpdateStyle{
		styleAction("a", "red", "blue"),
		styleAction("b", "red", "green"),
		styleAction("c", "red", "black"),
	}
	for _, a := range pushed {
		h.Push(a)
	}
	if h.Length() != 3 {
		t.Fatalf("expected 3 entries, got %d", h.Length())
	}

	for i := len(pushed) - 1; i >= 0; i-- {
		inv, err := h.Undo()
		if err != nil {
			t.Fatalf("Undo: %v", err)
		}
		got, ok := inv.(models.UpdateStyle)
		if !ok {
			t.Fatalf("expected UpdateStyle, got %T", inv)
		}
		if got.Targets[0].OID != pushed[i].Targets[0].OID {
			t.Errorf("step %d: expected oid %s, got %s", i, pushed[i].Targets[0].OID, got.Targets[0].OID)
		}
		if got.Targets[0].Change.Updated["color"].Value != "red" {
			t.Errorf("step %d: inverse should restore red, got %q", i, got.Targets[0].Change.Updated["color"].Value)
		}
	}
}

func TestUndo_Empty(t *testing.T) {
	h := New()
	inv, err := h.Undo()
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if inv != nil {
		t.Fatalf("expected nil, got %#v", inv)
	}
	if h.CanUndo() || h.CanRedo() {
		t.Error("empty history should not undo or redo")
	}
}

func TestTransaction_KeepsLastPush(t *testing.T) {
	h := New()
	a := styleAction("x", "red", "blue")
	b := styleAction("x", "red", "green")

	h.StartTransaction()
	h.Push(a)
	h.StartTransaction()
	h.Push(b)
	h.CommitTransaction()

	if h.Length() != 1 {
		t.Fatalf("expected one entry, got %d", h.Length())
	}
	inv, err := h.Undo()
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	want, _ := Inverse(b)
	if !reflect.DeepEqual(inv, want) {
		t.Errorf("expected inverse of last push\n got: %#v\nwant: %#v", inv, want)
	}
}

func TestTransaction_EmptyCommit(t *testing.T) {
	h := New()
	h.StartTransaction()
	h.CommitTransaction()
	if h.Length() != 0 {
		t.Fatalf("empty transaction recorded %d entries", h.Length())
	}
	if h.InTransaction() {
		t.Error("transaction still open after commit")
	}
}

func TestUndo_CommitsOpenTransaction(t *testing.T) {
	h := New()
	h.StartTransaction()
	h.Push(styleAction("x", "red", "blue"))
	if !h.CanUndo() {
		t.Fatal("pending action should be undoable")
	}

	inv, err := h.Undo()
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if inv == nil {
		t.Fatal("expected the pending action to be undone")
	}
	if h.InTransaction() {
		t.Error("undo should close the transaction")
	}
	if !h.CanRedo() {
		t.Error("undone action should be redoable")
	}
}

func TestRedo(t *testing.T) {
	h := New()
	a := styleAction("x", "red", "blue")
	h.Push(a)
	if _, err := h.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}

	got := h.Redo()
	if !reflect.DeepEqual(got, a) {
		t.Fatalf("expected redo to return the original action, got %#v", got)
	}
	if h.Length() != 1 || h.CanRedo() {
		t.Errorf("after redo: length %d, canRedo %v", h.Length(), h.CanRedo())
	}
	if h.Redo() != nil {
		t.Error("second redo should return nil")
	}
}

func TestPush_ClearsRedo(t *testing.T) {
	h := New()
	h.Push(styleAction("a", "red", "blue"))
	if _, err := h.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if !h.CanRedo() {
		t.Fatal("expected redo entry")
	}
	h.Push(styleAction("b", "red", "green"))
	if h.CanRedo() {
		t.Error("push should clear the redo stack")
	}
}

func TestPush_InTransactionKeepsRedo(t *testing.T) {
	h := New()
	h.Push(styleAction("a", "red", "blue"))
	if _, err := h.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	h.StartTransaction()
	h.Push(styleAction("b", "red", "green"))
	if len(h.redo) != 1 {
		t.Errorf("push inside a transaction should not touch redo, got %d", len(h.redo))
	}
	h.CommitTransaction()
	if h.CanRedo() {
		t.Error("commit should clear the redo stack")
	}
}

func TestClear(t *testing.T) {
	h := New()
	h.Push(styleAction("a", "red", "blue"))
	h.Push(styleAction("b", "red", "blue"))
	h.Undo()
	h.StartTransaction()
	h.Clear()
	if h.Length() != 0 || h.CanRedo() || h.InTransaction() {
		t.Error("clear should reset every stack and the transaction")
	}
}

func sampleActions() map[models.Kind]models.Action {
	text := "Hi"
	return map[models.Kind]models.Action{
		models.KindUpdateStyle: styleAction("a", "red", "blue"),
		models.KindInsertElement: models.InsertElement{
			Targets:  []models.Target{{OID: "root"}},
			Location: models.ActionLocation{Type: models.LocationAppend, TargetOID: "root"},
			Element: models.ActionElement{
				TagName:     "p",
				Attributes:  map[string]string{"className": "mt-2", "id": "x"},
				TextContent: &text,
				OID:         "new1",
				Children:    []models.ActionElement{{TagName: "span", OID: "new2"}},
			},
		},
		models.KindRemoveElement: models.RemoveElement{
			Targets:     []models.Target{{OID: "e2"}},
			Location:    models.ActionLocation{Type: models.LocationIndex, TargetOID: "root", Index: 1},
			Element:     models.ActionElement{TagName: "p", OID: "e2"},
			PasteParams: &models.PasteParams{OID: "e2"},
		},
		models.KindMoveElement: models.MoveElement{
			Targets:  []models.Target{{OID: "e2"}},
			Location: models.ActionLocation{Type: models.LocationIndex, TargetOID: "root", Index: 0, OriginalIndex: 1},
		},
		models.KindEditText: models.EditText{
			Targets:         []models.Target{{OID: "e1"}},
			OriginalContent: "Hello",
			NewContent:      "Bye",
		},
		models.KindGroupElements: models.GroupElements{
			Parent:    models.Target{OID: "root"},
			Container: models.ActionElement{TagName: "div", OID: "g1"},
			Children:  []models.Target{{OID: "e1"}, {OID: "e2"}},
		},
		models.KindUngroupElement: models.UngroupElements{
			Parent:    models.Target{OID: "root"},
			Container: models.ActionElement{TagName: "div", OID: "g1"},
			Children:  []models.Target{{OID: "e1"}},
		},
		models.KindInsertImage: models.InsertImage{
			Targets: []models.Target{{OID: "e1"}},
			Image:   models.ImageContent{FileName: "cat.png"},
		},
		models.KindRemoveImage: models.RemoveImage{
			Targets: []models.Target{{OID: "e1"}},
			Image:   models.ImageContent{FileName: "cat.png"},
		},
		models.KindWriteCode: models.WriteCode{
			BranchID: "main",
			Diffs:    []models.CodeDiff{{Path: "app/page.tsx", Original: "a", Generated: "b"}},
		},
	}
}

func TestInverse_EveryKind(t *testing.T) {
	samples := sampleActions()
	for _, kind := range models.Kinds() {
		a, ok := samples[kind]
		if !ok {
			t.Errorf("no sample for %s", kind)
			continue
		}
		if _, err := Inverse(a); err != nil {
			t.Errorf("%s: %v", kind, err)
		}
	}
}

func TestInverse_Kinds(t *testing.T) {
	want := map[models.Kind]models.Kind{
		models.KindUpdateStyle:    models.KindUpdateStyle,
		models.KindInsertElement:  models.KindRemoveElement,
		models.KindRemoveElement:  models.KindInsertElement,
		models.KindMoveElement:    models.KindMoveElement,
		models.KindEditText:       models.KindEditText,
		models.KindGroupElements:  models.KindUngroupElement,
		models.KindUngroupElement: models.KindGroupElements,
		models.KindInsertImage:    models.KindRemoveImage,
		models.KindRemoveImage:    models.KindInsertImage,
		models.KindWriteCode:      models.KindWriteCode,
	}
	for kind, a := range sampleActions() {
		inv, err := Inverse(a)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if inv.Kind() != want[kind] {
			t.Errorf("%s: expected inverse %s, got %s", kind, want[kind], inv.Kind())
		}
	}
}

func TestInverse_Involutions(t *testing.T) {
	kinds := []models.Kind{
		models.KindUpdateStyle,
		models.KindMoveElement,
		models.KindEditText,
		models.KindGroupElements,
		models.KindUngroupElement,
		models.KindInsertImage,
		models.KindRemoveImage,
		models.KindWriteCode,
	}
	samples := sampleActions()
	for _, kind := range kinds {
		a := samples[kind]
		inv, err := Inverse(a)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		back, err := Inverse(inv)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if !reflect.DeepEqual(back, a) {
			t.Errorf("%s: double inverse differs\n got: %#v\nwant: %#v", kind, back, a)
		}
	}
}

func TestInverse_InsertKeepsOIDs(t *testing.T) {
	a := sampleActions()[models.KindInsertElement].(models.InsertElement)
	inv, err := Inverse(a)
	if err != nil {
		t.Fatalf("Inverse: %v", err)
	}
	rm := inv.(models.RemoveElement)
	if rm.Element.OID != "new1" || rm.Element.Children[0].OID != "new2" {
		t.Errorf("oids not kept: %s, %s", rm.Element.OID, rm.Element.Children[0].OID)
	}
	if rm.Element.Attributes["className"] != "mt-2" {
		t.Errorf("className lost: %v", rm.Element.Attributes)
	}
	if _, ok := rm.Element.Attributes["id"]; ok {
		t.Error("inverse element should only carry its class")
	}
	if *rm.Element.TextContent != "Hi" {
		t.Errorf("text lost: %q", *rm.Element.TextContent)
	}

	*rm.Element.TextContent = "changed"
	if *a.Element.TextContent != "Hi" {
		t.Error("inverse shares text with the original")
	}
}

func TestInverse_MoveSwapsIndexes(t *testing.T) {
	inv, err := Inverse(sampleActions()[models.KindMoveElement])
	if err != nil {
		t.Fatalf("Inverse: %v", err)
	}
	loc := inv.(models.MoveElement).Location
	if loc.Index != 1 || loc.OriginalIndex != 0 {
		t.Errorf("expected index 1 from 0, got %d from %d", loc.Index, loc.OriginalIndex)
	}
}

func TestInverse_Nil(t *testing.T) {
	if _, err := Inverse(nil); !errors.Is(err, models.ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}
