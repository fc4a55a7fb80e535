// Package code provides the pipeline that turns editor actions into source
// diffs: request building, grouping by file, the batched AST transform and
// writing the results to a branch's code store.
package code

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"loom/internal/models"
	"loom/internal/style"
)

var (
	ErrNoOID            = errors.New("no oid found")
	ErrNoTargetOID      = errors.New("no target oid found")
	ErrMetadataNotFound = errors.New("metadata not found for oid")
	ErrBinaryFile       = errors.New("cannot diff binary file")
	ErrNoRequestGroup   = errors.New("no request group found for file")
	ErrNotImplemented   = errors.New("not implemented")
)

// ImageDir is the project directory images are written to.
const ImageDir = "public/images"

// requestSet is the per-cycle accumulator of requests keyed by oid.
type requestSet struct {
	byOID map[string]*models.CodeDiffRequest
	order []string
}

func newRequestSet() *requestSet {
	return &requestSet{byOID: make(map[string]*models.CodeDiffRequest)}
}

func (s *requestSet) get(oid, branchID string) *models.CodeDiffRequest {
	if r, ok := s.byOID[oid]; ok {
		if r.BranchID == "" {
			r.BranchID = branchID
		}
		return r
	}
	r := models.NewCodeDiffRequest(oid, branchID)
	s.byOID[oid] = r
	s.order = append(s.order, oid)
	return r
}

func (s *requestSet) list() []*models.CodeDiffRequest {
	out := make([]*models.CodeDiffRequest, 0, len(s.order))
	for _, oid := range s.order {
		out = append(out, s.byOID[oid])
	}
	return out
}

// Builder converts actions into code diff requests.
type Builder struct {
	styles *style.Translator
}

// NewBuilder creates a builder using tr for style translation.
func NewBuilder(tr *style.Translator) *Builder {
	if tr == nil {
		tr = style.NewTranslator(nil)
	}
	return &Builder{styles: tr}
}

// BuildRequests converts one or more actions into requests. Actions touching
// the same oid share one request, so there is at most one request per oid.
func (b *Builder) BuildRequests(actions ...models.Action) ([]*models.CodeDiffRequest, error) {
	set := newRequestSet()
	for _, a := range actions {
		if err := b.add(set, a); err != nil {
			return nil, err
		}
	}
	return set.list(), nil
}

func (b *Builder) add(set *requestSet, action models.Action) error {
	switch a := action.(type) {
	case models.UpdateStyle:
		return b.updateStyle(set, a)
	case models.InsertElement:
		return b.insertElement(set, a)
	case models.RemoveElement:
		return b.removeElement(set, a)
	case models.MoveElement:
		return b.moveElement(set, a)
	case models.EditText:
		return b.editText(set, a)
	case models.GroupElements:
		return b.groupElements(set, a)
	case models.UngroupElements:
		return b.ungroupElements(set, a)
	case models.InsertImage:
		return b.insertImage(set, a)
	case models.RemoveImage:
		return b.removeImage(set, a)
	case models.WriteCode:
		return fmt.Errorf("%w: write-code bypasses the request pipeline", ErrNotImplemented)
	default:
		return models.Unreachable(action)
	}
}

func (b *Builder) updateStyle(set *requestSet, a models.UpdateStyle) error {
	for _, t := range a.Targets {
		if t.OID == "" {
			return fmt.Errorf("%w for style change", ErrNoOID)
		}
		req := set.get(t.OID, t.BranchID)
		classes := b.styles.ClassesForStyles(t.OID, t.Change.Updated)
		req.Attributes["className"] = style.MergeClasses(req.Attributes["className"], classes)
	}
	return nil
}

func (b *Builder) insertElement(set *requestSet, a models.InsertElement) error {
	target := a.Location.TargetOID
	if target == "" {
		return fmt.Errorf("%w for inserted element", ErrNoTargetOID)
	}
	ins := b.insertDescriptor(a.Element)
	ins.Location = a.Location
	ins.PasteParams = a.PasteParams
	ins.CodeBlock = a.CodeBlock

	req := set.get(target, branchOf(a.Targets))
	req.StructureChanges = append(req.StructureChanges, ins)
	return nil
}

// insertDescriptor builds the recursive insertion descriptor for el. Paste
// parameters and code blocks apply only to the insertion root and are set
// by the caller.
func (b *Builder) insertDescriptor(el models.ActionElement) models.CodeInsert {
	attrs := make(map[string]string, len(el.Attributes)+1)
	for k, v := range el.Attributes {
		switch k {
		case "style", "class", "className", "data-oid":
			continue
		}
		attrs[k] = v
	}
	classes := style.MergeClasses(el.Attributes["class"], el.Attributes["className"], b.styles.ClassesForCSS(el.OID, el.Styles))
	if classes != "" {
		attrs["className"] = classes
	}

	ins := models.CodeInsert{
		TagName:    el.TagName,
		Attributes: attrs,
		OID:        el.OID,
	}
	if el.TextContent != nil {
		text := *el.TextContent
		ins.TextContent = &text
	}
	for _, c := range el.Children {
		ins.Children = append(ins.Children, b.insertDescriptor(c))
	}
	return ins
}

func (b *Builder) removeElement(set *requestSet, a models.RemoveElement) error {
	oid := a.Element.OID
	if oid == "" && len(a.Targets) > 0 {
		oid = a.Targets[0].OID
	}
	if oid == "" {
		return fmt.Errorf("%w for removed element", ErrNoOID)
	}
	req := set.get(oid, branchOf(a.Targets))
	req.StructureChanges = append(req.StructureChanges, models.CodeRemove{OID: oid, CodeBlock: a.CodeBlock})
	return nil
}

func (b *Builder) moveElement(set *requestSet, a models.MoveElement) error {
	for _, t := range a.Targets {
		if t.OID == "" {
			return fmt.Errorf("%w for moved element", ErrNoOID)
		}
		if a.Location.TargetOID == "" {
			return fmt.Errorf("%w for move location", ErrNoTargetOID)
		}
		req := set.get(a.Location.TargetOID, t.BranchID)
		req.StructureChanges = append(req.StructureChanges, models.CodeMove{OID: t.OID, Location: a.Location})
	}
	return nil
}

func (b *Builder) editText(set *requestSet, a models.EditText) error {
	for _, t := range a.Targets {
		if t.OID == "" {
			return fmt.Errorf("%w for edited text", ErrNoOID)
		}
		text := a.NewContent
		set.get(t.OID, t.BranchID).TextContent = &text
	}
	return nil
}

func (b *Builder) container(el models.ActionElement) models.ActionElement {
	out := el.Clone()
	ins := b.insertDescriptor(el)
	out.Attributes = ins.Attributes
	out.Styles = nil
	return out
}

func (b *Builder) groupElements(set *requestSet, a models.GroupElements) error {
	if a.Parent.OID == "" {
		return fmt.Errorf("%w for group parent", ErrNoOID)
	}
	req := set.get(a.Parent.OID, a.Parent.BranchID)
	req.StructureChanges = append(req.StructureChanges, models.CodeGroup{
		OID:       a.Parent.OID,
		Container: b.container(a.Container),
		Children:  append([]models.Target(nil), a.Children...),
	})
	return nil
}

func (b *Builder) ungroupElements(set *requestSet, a models.UngroupElements) error {
	if a.Parent.OID == "" {
		return fmt.Errorf("%w for ungroup parent", ErrNoOID)
	}
	req := set.get(a.Parent.OID, a.Parent.BranchID)
	req.StructureChanges = append(req.StructureChanges, models.CodeUngroup{
		OID:       a.Parent.OID,
		Container: b.container(a.Container),
		Children:  append([]models.Target(nil), a.Children...),
	})
	return nil
}

func (b *Builder) insertImage(set *requestSet, a models.InsertImage) error {
	for _, t := range a.Targets {
		if t.OID == "" {
			return fmt.Errorf("%w for inserted image", ErrNoOID)
		}
		req := set.get(t.OID, t.BranchID)
		req.StructureChanges = append(req.StructureChanges, models.CodeInsertImage{
			OID:        t.OID,
			Image:      a.Image,
			PublicPath: PublicImagePath(a.Image.FileName),
		})
	}
	return nil
}

func (b *Builder) removeImage(set *requestSet, a models.RemoveImage) error {
	for _, t := range a.Targets {
		if t.OID == "" {
			return fmt.Errorf("%w for removed image", ErrNoOID)
		}
		req := set.get(t.OID, t.BranchID)
		req.StructureChanges = append(req.StructureChanges, models.CodeRemoveImage{OID: t.OID, Image: a.Image})
	}
	return nil
}

// PublicImagePath is the URL path an image file is served from.
func PublicImagePath(fileName string) string {
	return "/" + strings.TrimPrefix(path.Join("images", path.Base(fileName)), "/")
}

func branchOf(targets []models.Target) string {
	for _, t := range targets {
		if t.BranchID != "" {
			return t.BranchID
		}
	}
	return ""
}
