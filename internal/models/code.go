package models

// CodeDiff is the atomic writable unit produced by the AST transform.
type CodeDiff struct {
	Original  string `json:"original" yaml:"original"`
	Generated string `json:"generated" yaml:"generated"`
	Path      string `json:"path" yaml:"path"`
}

// Changed reports whether the generated text differs from the original.
func (d CodeDiff) Changed() bool {
	return d.Original != d.Generated
}

// CodeActionType discriminates structure changes recorded on a request.
type CodeActionType string

const (
	CodeInsertType      CodeActionType = "insert"
	CodeRemoveType      CodeActionType = "remove"
	CodeMoveType        CodeActionType = "move"
	CodeGroupType       CodeActionType = "group"
	CodeUngroupType     CodeActionType = "ungroup"
	CodeInsertImageType CodeActionType = "insert-image"
	CodeRemoveImageType CodeActionType = "remove-image"
)

// StructureChange is a structural mutation attached to the request of the
// element that owns the resulting AST change.
type StructureChange interface {
	CodeActionType() CodeActionType
}

// CodeInsert describes an element to insert. Children never carry paste
// parameters or code blocks; those apply only to the insertion root.
type CodeInsert struct {
	TagName     string            `json:"tagName"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	TextContent *string           `json:"textContent,omitempty"`
	Children    []CodeInsert      `json:"children,omitempty"`
	OID         string            `json:"oid"`
	Location    ActionLocation    `json:"location"`
	PasteParams *PasteParams      `json:"pasteParams,omitempty"`
	CodeBlock   *string           `json:"codeBlock,omitempty"`
}

// CodeRemove removes the element with OID from its parent.
type CodeRemove struct {
	OID       string  `json:"oid"`
	CodeBlock *string `json:"codeBlock,omitempty"`
}

// CodeMove moves the element with OID to Location inside the owning element.
type CodeMove struct {
	OID      string         `json:"oid"`
	Location ActionLocation `json:"location"`
}

// CodeGroup wraps Children of the owning element in Container.
type CodeGroup struct {
	OID       string        `json:"oid"`
	Container ActionElement `json:"container"`
	Children  []Target      `json:"children"`
}

// CodeUngroup unwraps Container inside the owning element.
type CodeUngroup struct {
	OID       string        `json:"oid"`
	Container ActionElement `json:"container"`
	Children  []Target      `json:"children"`
}

// CodeInsertImage sets Image as the owning element's background.
type CodeInsertImage struct {
	OID        string       `json:"oid"`
	Image      ImageContent `json:"image"`
	PublicPath string       `json:"publicPath"`
}

// CodeRemoveImage clears the owning element's background image.
type CodeRemoveImage struct {
	OID   string       `json:"oid"`
	Image ImageContent `json:"image"`
}

func (CodeInsert) CodeActionType() CodeActionType      { return CodeInsertType }
func (CodeRemove) CodeActionType() CodeActionType      { return CodeRemoveType }
func (CodeMove) CodeActionType() CodeActionType        { return CodeMoveType }
func (CodeGroup) CodeActionType() CodeActionType       { return CodeGroupType }
func (CodeUngroup) CodeActionType() CodeActionType     { return CodeUngroupType }
func (CodeInsertImage) CodeActionType() CodeActionType { return CodeInsertImageType }
func (CodeRemoveImage) CodeActionType() CodeActionType { return CodeRemoveImageType }

// CodeDiffRequest accumulates every change to one element within one write
// cycle.
type CodeDiffRequest struct {
	OID              string            `json:"oid"`
	BranchID         string            `json:"branchId,omitempty"`
	StructureChanges []StructureChange `json:"structureChanges"`
	Attributes       map[string]string `json:"attributes"`
	TextContent      *string           `json:"textContent"`
	OverrideClasses  *bool             `json:"overrideClasses"`
}

// NewCodeDiffRequest returns an empty request for oid.
func NewCodeDiffRequest(oid, branchID string) *CodeDiffRequest {
	return &CodeDiffRequest{
		OID:              oid,
		BranchID:         branchID,
		StructureChanges: []StructureChange{},
		Attributes:       map[string]string{},
	}
}

// Empty reports whether the request carries no change.
func (r *CodeDiffRequest) Empty() bool {
	return len(r.StructureChanges) == 0 && len(r.Attributes) == 0 && r.TextContent == nil
}
