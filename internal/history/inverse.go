package history

import (
	"loom/internal/models"
)

// Inverse returns the action that undoes a. Inserted and removed elements
// keep their oid so the inverse addresses the same source element.
func Inverse(a models.Action) (models.Action, error) {
	switch a := a.(type) {
	case models.UpdateStyle:
		targets := make([]models.StyleTarget, len(a.Targets))
		for i, t := range a.Targets {
			targets[i] = models.StyleTarget{
				Target: t.Target,
				Change: models.Change[models.StyleMap]{
					Original: t.Change.Updated.Clone(),
					Updated:  t.Change.Original.Clone(),
				},
			}
		}
		return models.UpdateStyle{Targets: targets}, nil

	case models.InsertElement:
		return models.RemoveElement{
			Targets:  cloneTargets(a.Targets),
			Location: a.Location,
			Element:  cleanElement(a.Element),
		}, nil

	case models.RemoveElement:
		return models.InsertElement{
			Targets:     cloneTargets(a.Targets),
			Location:    a.Location,
			Element:     cleanElement(a.Element),
			EditText:    a.EditText,
			PasteParams: clonePaste(a.PasteParams),
			CodeBlock:   a.CodeBlock,
		}, nil

	case models.MoveElement:
		loc := a.Location
		loc.Index, loc.OriginalIndex = a.Location.OriginalIndex, a.Location.Index
		return models.MoveElement{Targets: cloneTargets(a.Targets), Location: loc}, nil

	case models.EditText:
		return models.EditText{
			Targets:         cloneTargets(a.Targets),
			OriginalContent: a.NewContent,
			NewContent:      a.OriginalContent,
		}, nil

	case models.GroupElements:
		return models.UngroupElements{
			Parent:    a.Parent,
			Container: a.Container.Clone(),
			Children:  cloneTargets(a.Children),
		}, nil

	case models.UngroupElements:
		return models.GroupElements{
			Parent:    a.Parent,
			Container: a.Container.Clone(),
			Children:  cloneTargets(a.Children),
		}, nil

	case models.InsertImage:
		return models.RemoveImage{Targets: cloneTargets(a.Targets), Image: a.Image}, nil

	case models.RemoveImage:
		return models.InsertImage{Targets: cloneTargets(a.Targets), Image: a.Image}, nil

	case models.WriteCode:
		diffs := make([]models.CodeDiff, len(a.Diffs))
		for i, d := range a.Diffs {
			diffs[i] = models.CodeDiff{Original: d.Generated, Generated: d.Original, Path: d.Path}
		}
		return models.WriteCode{BranchID: a.BranchID, Diffs: diffs}, nil

	default:
		return nil, models.Unreachable(a)
	}
}

// cleanElement copies an element for re-insertion or removal, keeping only
// the class attribute and the identity of every node.
func cleanElement(e models.ActionElement) models.ActionElement {
	out := models.ActionElement{
		TagName: e.TagName,
		DomID:   e.DomID,
		OID:     e.OID,
	}
	if class, ok := classOf(e.Attributes); ok {
		out.Attributes = map[string]string{"className": class}
	}
	if e.Styles != nil {
		out.Styles = make(map[string]string, len(e.Styles))
		for k, v := range e.Styles {
			out.Styles[k] = v
		}
	}
	if e.TextContent != nil {
		text := *e.TextContent
		out.TextContent = &text
	}
	for _, c := range e.Children {
		out.Children = append(out.Children, cleanElement(c))
	}
	return out
}

func classOf(attrs map[string]string) (string, bool) {
	if v, ok := attrs["className"]; ok {
		return v, true
	}
	v, ok := attrs["class"]
	return v, ok
}

func cloneTargets(ts []models.Target) []models.Target {
	if ts == nil {
		return nil
	}
	return append([]models.Target(nil), ts...)
}

func clonePaste(p *models.PasteParams) *models.PasteParams {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
