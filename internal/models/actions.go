package models

import (
	"errors"
	"fmt"
)

// ErrUnknownAction is returned for action kinds this package does not define.
var ErrUnknownAction = errors.New("unknown action type")

// Kind is the discriminator of an Action.
type Kind string

const (
	KindUpdateStyle    Kind = "update-style"
	KindInsertElement  Kind = "insert-element"
	KindRemoveElement  Kind = "remove-element"
	KindMoveElement    Kind = "move-element"
	KindEditText       Kind = "edit-text"
	KindGroupElements  Kind = "group-elements"
	KindUngroupElement Kind = "ungroup-elements"
	KindInsertImage    Kind = "insert-image"
	KindRemoveImage    Kind = "remove-image"
	KindWriteCode      Kind = "write-code"
)

// Kinds returns every action kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindUpdateStyle,
		KindInsertElement,
		KindRemoveElement,
		KindMoveElement,
		KindEditText,
		KindGroupElements,
		KindUngroupElement,
		KindInsertImage,
		KindRemoveImage,
		KindWriteCode,
	}
}

// Action is one atomic user-visible edit. The set of implementations is
// closed: only types in this package satisfy it.
type Action interface {
	Kind() Kind
	sealed()
}

// Target references an element in a preview frame and its source.
type Target struct {
	FrameID  string `json:"frameId,omitempty" yaml:"frameId,omitempty"`
	DomID    string `json:"domId,omitempty" yaml:"domId,omitempty"`
	OID      string `json:"oid,omitempty" yaml:"oid,omitempty"`
	BranchID string `json:"branchId,omitempty" yaml:"branchId,omitempty"`
}

// StyleTarget is a target together with its style change.
type StyleTarget struct {
	Target `yaml:",inline"`
	Change Change[StyleMap] `json:"change" yaml:"change"`
}

// LocationType selects where an inserted or moved element lands.
type LocationType string

const (
	LocationPrepend LocationType = "prepend"
	LocationAppend  LocationType = "append"
	LocationIndex   LocationType = "index"
)

// ActionLocation identifies a position among a container's element children.
type ActionLocation struct {
	Type          LocationType `json:"type" yaml:"type"`
	TargetDomID   string       `json:"targetDomId,omitempty" yaml:"targetDomId,omitempty"`
	TargetOID     string       `json:"targetOid,omitempty" yaml:"targetOid,omitempty"`
	Index         int          `json:"index,omitempty" yaml:"index,omitempty"`
	OriginalIndex int          `json:"originalIndex,omitempty" yaml:"originalIndex,omitempty"`
}

// ActionElement describes an element subtree carried by insert/remove actions.
type ActionElement struct {
	TagName     string            `json:"tagName" yaml:"tagName"`
	Attributes  map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Styles      map[string]string `json:"styles,omitempty" yaml:"styles,omitempty"`
	TextContent *string           `json:"textContent,omitempty" yaml:"textContent,omitempty"`
	Children    []ActionElement   `json:"children,omitempty" yaml:"children,omitempty"`
	DomID       string            `json:"domId,omitempty" yaml:"domId,omitempty"`
	OID         string            `json:"oid,omitempty" yaml:"oid,omitempty"`
}

// Clone returns a deep copy of the element.
func (e ActionElement) Clone() ActionElement {
	out := e
	out.Attributes = cloneStrings(e.Attributes)
	out.Styles = cloneStrings(e.Styles)
	if e.TextContent != nil {
		text := *e.TextContent
		out.TextContent = &text
	}
	if e.Children != nil {
		out.Children = make([]ActionElement, len(e.Children))
		for i, c := range e.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// PasteParams carries the provenance of pasted elements.
type PasteParams struct {
	OID       string  `json:"oid,omitempty" yaml:"oid,omitempty"`
	DomID     string  `json:"domId,omitempty" yaml:"domId,omitempty"`
	CodeBlock *string `json:"codeBlock,omitempty" yaml:"codeBlock,omitempty"`
}

// ImageContent is an image payload for image actions.
type ImageContent struct {
	FileName   string `json:"fileName" yaml:"fileName"`
	MimeType   string `json:"mimeType,omitempty" yaml:"mimeType,omitempty"`
	Content    string `json:"content,omitempty" yaml:"content,omitempty"` // base64
	OriginPath string `json:"originPath,omitempty" yaml:"originPath,omitempty"`
}

// UpdateStyle changes CSS properties on one or more elements.
type UpdateStyle struct {
	Targets []StyleTarget `json:"targets" yaml:"targets"`
}

// InsertElement inserts an element subtree at a location.
type InsertElement struct {
	Targets     []Target       `json:"targets" yaml:"targets"`
	Location    ActionLocation `json:"location" yaml:"location"`
	Element     ActionElement  `json:"element" yaml:"element"`
	EditText    bool           `json:"editText,omitempty" yaml:"editText,omitempty"`
	PasteParams *PasteParams   `json:"pasteParams,omitempty" yaml:"pasteParams,omitempty"`
	CodeBlock   *string        `json:"codeBlock,omitempty" yaml:"codeBlock,omitempty"`
}

// RemoveElement removes an element subtree. It mirrors InsertElement so the
// two can be inverted into each other.
type RemoveElement struct {
	Targets     []Target       `json:"targets" yaml:"targets"`
	Location    ActionLocation `json:"location" yaml:"location"`
	Element     ActionElement  `json:"element" yaml:"element"`
	EditText    bool           `json:"editText,omitempty" yaml:"editText,omitempty"`
	PasteParams *PasteParams   `json:"pasteParams,omitempty" yaml:"pasteParams,omitempty"`
	CodeBlock   *string        `json:"codeBlock,omitempty" yaml:"codeBlock,omitempty"`
}

// MoveElement moves elements to a new location.
type MoveElement struct {
	Targets  []Target       `json:"targets" yaml:"targets"`
	Location ActionLocation `json:"location" yaml:"location"`
}

// EditText replaces the text content of elements.
type EditText struct {
	Targets         []Target `json:"targets" yaml:"targets"`
	OriginalContent string   `json:"originalContent" yaml:"originalContent"`
	NewContent      string   `json:"newContent" yaml:"newContent"`
}

// GroupElements wraps children of Parent in a new Container.
type GroupElements struct {
	Parent    Target        `json:"parent" yaml:"parent"`
	Container ActionElement `json:"container" yaml:"container"`
	Children  []Target      `json:"children" yaml:"children"`
}

// UngroupElements unwraps Container, splicing its children into Parent.
type UngroupElements struct {
	Parent    Target        `json:"parent" yaml:"parent"`
	Container ActionElement `json:"container" yaml:"container"`
	Children  []Target      `json:"children" yaml:"children"`
}

// InsertImage sets an image as the background of the targets.
type InsertImage struct {
	Targets []Target     `json:"targets" yaml:"targets"`
	Image   ImageContent `json:"image" yaml:"image"`
}

// RemoveImage removes a background image from the targets.
type RemoveImage struct {
	Targets []Target     `json:"targets" yaml:"targets"`
	Image   ImageContent `json:"image" yaml:"image"`
}

// WriteCode writes pre-built diffs without going through the AST pipeline.
type WriteCode struct {
	BranchID string     `json:"branchId,omitempty" yaml:"branchId,omitempty"`
	Diffs    []CodeDiff `json:"diffs" yaml:"diffs"`
}

func (UpdateStyle) Kind() Kind     { return KindUpdateStyle }
func (InsertElement) Kind() Kind   { return KindInsertElement }
func (RemoveElement) Kind() Kind   { return KindRemoveElement }
func (MoveElement) Kind() Kind     { return KindMoveElement }
func (EditText) Kind() Kind        { return KindEditText }
func (GroupElements) Kind() Kind   { return KindGroupElements }
func (UngroupElements) Kind() Kind { return KindUngroupElement }
func (InsertImage) Kind() Kind     { return KindInsertImage }
func (RemoveImage) Kind() Kind     { return KindRemoveImage }
func (WriteCode) Kind() Kind       { return KindWriteCode }

func (UpdateStyle) sealed()     {}
func (InsertElement) sealed()   {}
func (RemoveElement) sealed()   {}
func (MoveElement) sealed()     {}
func (EditText) sealed()        {}
func (GroupElements) sealed()   {}
func (UngroupElements) sealed() {}
func (InsertImage) sealed()     {}
func (RemoveImage) sealed()     {}
func (WriteCode) sealed()       {}

// Unreachable builds the error returned from the default branch of an
// exhaustive switch over Action.
func Unreachable(a Action) error {
	if a == nil {
		return fmt.Errorf("%w: <nil>", ErrUnknownAction)
	}
	return fmt.Errorf("%w: %s (%T)", ErrUnknownAction, a.Kind(), a)
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
