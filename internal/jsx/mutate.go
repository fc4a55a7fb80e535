package jsx

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"loom/internal/models"
	"loom/internal/style"
)

var (
	// ErrElementNotFound is returned when a change references an oid that is
	// not present in the document.
	ErrElementNotFound = errors.New("element not found")
	// ErrNotChild is returned when a structural change targets an element
	// that is not a direct child of another element, such as one rendered
	// inside an expression.
	ErrNotChild = errors.New("element is not a direct child of an element")
)

// Apply applies every request whose oid is stamped in the document. Elements
// are visited in document order and each element's request is applied
// attributes first, then structure changes, then text. It returns the oids
// that matched no element.
func (d *Document) Apply(reqs map[string]*models.CodeDiffRequest) ([]string, error) {
	matched := make(map[string]bool, len(reqs))
	for _, e := range d.Elements() {
		oid := e.OID()
		req, ok := reqs[oid]
		if !ok || matched[oid] {
			continue
		}
		matched[oid] = true
		if !e.attached() {
			continue
		}
		if err := d.applyRequest(e, req); err != nil {
			return nil, fmt.Errorf("applying changes to %s: %w", oid, err)
		}
	}

	var missing []string
	for oid := range reqs {
		if !matched[oid] {
			missing = append(missing, oid)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

func (d *Document) applyRequest(e *Element, req *models.CodeDiffRequest) error {
	override := req.OverrideClasses != nil && *req.OverrideClasses
	names := make([]string, 0, len(req.Attributes))
	for name := range req.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := req.Attributes[name]
		if name == "className" {
			e.mergeClassName(value, override)
			continue
		}
		e.setStringAttr(name, value)
	}

	for _, change := range req.StructureChanges {
		if err := d.applyStructure(e, change); err != nil {
			return err
		}
	}

	if req.TextContent != nil {
		e.setText(*req.TextContent)
	}
	return nil
}

func (d *Document) applyStructure(e *Element, change models.StructureChange) error {
	switch c := change.(type) {
	case models.CodeInsert:
		return d.insert(e, c)
	case models.CodeRemove:
		target := e
		if c.OID != "" && c.OID != e.OID() {
			if target = d.Element(c.OID); target == nil {
				return fmt.Errorf("%w: %s", ErrElementNotFound, c.OID)
			}
		}
		return target.remove()
	case models.CodeMove:
		return d.move(e, c)
	case models.CodeGroup:
		return d.group(e, c)
	case models.CodeUngroup:
		return d.ungroup(e, c)
	case models.CodeInsertImage:
		e.mergeClassName(style.ImageClass(c.PublicPath), false)
		return nil
	case models.CodeRemoveImage:
		e.stripImageClass()
		return nil
	default:
		return fmt.Errorf("unsupported structure change %T", change)
	}
}

// mergeClassName merges classes into the className attribute. Expression
// class names are kept and the classes appended through a template literal.
func (e *Element) mergeClassName(classes string, override bool) {
	a := e.Attr("className")
	if a == nil || override || a.kind == attrBare || a.kind == attrOther {
		e.setStringAttr("className", classes)
		return
	}
	if a.kind == attrString {
		e.setStringAttr("className", style.MergeClasses(a.value, classes))
		return
	}
	if lit, ok := unquoteJS(a.value); ok {
		e.setStringAttr("className", style.MergeClasses(lit, classes))
		return
	}
	if head, tail, ok := splitTemplate(a.value); ok {
		e.setExprAttr("className", "`"+joinTemplate(head, style.MergeClasses(tail, classes))+"`")
		return
	}
	e.setExprAttr("className", "`${"+a.value+"} "+classes+"`")
}

func (e *Element) stripImageClass() {
	a := e.Attr("className")
	if a == nil {
		return
	}
	switch {
	case a.kind == attrString:
		e.setStringAttr("className", style.StripImageClasses(a.value, ""))
	case a.kind == attrExpr:
		if lit, ok := unquoteJS(a.value); ok {
			e.setStringAttr("className", style.StripImageClasses(lit, ""))
		} else if head, tail, ok := splitTemplate(a.value); ok {
			e.setExprAttr("className", "`"+joinTemplate(head, style.StripImageClasses(tail, ""))+"`")
		}
	}
}

// splitTemplate splits a template literal into the part up to its last
// substitution and the static class list after it.
func splitTemplate(expr string) (string, string, bool) {
	if len(expr) < 2 || expr[0] != '`' || expr[len(expr)-1] != '`' {
		return "", "", false
	}
	inner := expr[1 : len(expr)-1]
	i := strings.LastIndexByte(inner, '}')
	if i < 0 {
		return "", inner, true
	}
	return inner[:i+1], inner[i+1:], true
}

func joinTemplate(head, tail string) string {
	if head == "" {
		return tail
	}
	if tail == "" {
		return head
	}
	return head + " " + tail
}

func unquoteJS(expr string) (string, bool) {
	if len(expr) < 2 {
		return "", false
	}
	q := expr[0]
	if (q != '"' && q != '\'') || expr[len(expr)-1] != q {
		return "", false
	}
	inner := expr[1 : len(expr)-1]
	if strings.ContainsAny(inner, "\\"+string(q)) {
		return "", false
	}
	return inner, true
}

func (e *Element) setStringAttr(name, value string) {
	if strings.ContainsAny(value, "\"\n") {
		e.setExprAttr(name, strconv.Quote(value))
		return
	}
	a := e.ensureAttr(name)
	a.kind = attrString
	a.value = value
	a.text = name + `="` + value + `"`
}

func (e *Element) setExprAttr(name, expr string) {
	a := e.ensureAttr(name)
	a.kind = attrExpr
	a.value = expr
	a.text = name + "={" + expr + "}"
}

func (e *Element) ensureAttr(name string) *Attr {
	e.openDirty = true
	a := e.Attr(name)
	if a == nil {
		a = &Attr{Lead: " ", Name: name, doc: e.doc}
		e.Attrs = append(e.Attrs, a)
	}
	a.start, a.end, a.nested = -1, -1, nil
	return a
}

// escapeText renders text as a JSX child, using an expression container
// when the text holds characters JSX would interpret.
func escapeText(text string) string {
	if strings.ContainsAny(text, "{}<>\n") {
		return "{" + strconv.Quote(text) + "}"
	}
	return text
}

func (e *Element) setText(text string) {
	e.openChildren()
	for _, c := range e.Children {
		if c.Elem != nil {
			c.Elem.detached = true
		}
		for _, n := range c.nested {
			n.detached = true
		}
	}
	e.Children = nil
	e.trail = ""
	if text != "" {
		e.Children = []*Child{{Text: escapeText(text), start: -1, end: -1, doc: e.doc}}
	}
}

// openChildren prepares the element's child list for modification,
// converting a self-closing element into an open/close pair.
func (e *Element) openChildren() {
	e.childrenDirty = true
	if !e.SelfClosing {
		return
	}
	e.SelfClosing = false
	e.openDirty = true
	e.openTail = strings.TrimRight(e.openTail, " \t")
	e.closeStart = -1
	e.trail = ""
}

// childIndex returns the position of child el in e.Children, or -1.
func (e *Element) childIndex(el *Element) int {
	for i, c := range e.Children {
		if c.Elem == el {
			return i
		}
	}
	return -1
}

// childPos converts a location into a position in e.Children. Index
// locations count element children only.
func (e *Element) childPos(loc models.ActionLocation) int {
	switch loc.Type {
	case models.LocationPrepend:
		return 0
	case models.LocationIndex:
		if loc.Index <= 0 {
			for i, c := range e.Children {
				if c.Elem != nil {
					return i
				}
			}
			return len(e.Children)
		}
		n := 0
		for i, c := range e.Children {
			if c.Elem == nil {
				continue
			}
			if n == loc.Index {
				return i
			}
			n++
		}
		return len(e.Children)
	default:
		return len(e.Children)
	}
}

func (e *Element) insertChildAt(pos int, c *Child) {
	e.openChildren()
	e.Children = append(e.Children, nil)
	copy(e.Children[pos+1:], e.Children[pos:])
	e.Children[pos] = c
	if c.Elem != nil {
		c.Elem.Parent = e
		c.Elem.detached = false
	}
	if !strings.Contains(e.trail, "\n") && strings.Contains(c.Lead, "\n") {
		e.trail = "\n" + e.lineIndent()
	}
}

func (e *Element) removeChildAt(pos int) *Child {
	c := e.Children[pos]
	e.Children = append(e.Children[:pos], e.Children[pos+1:]...)
	e.childrenDirty = true
	blank := true
	for _, rest := range e.Children {
		if !rest.isBlank() {
			blank = false
			break
		}
	}
	if blank {
		e.Children = nil
		e.trail = ""
	}
	return c
}

func (e *Element) remove() error {
	if e.Parent == nil {
		return fmt.Errorf("%w: %s", ErrNotChild, e.OID())
	}
	i := e.Parent.childIndex(e)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotChild, e.OID())
	}
	e.Parent.removeChildAt(i)
	e.detached = true
	return nil
}

// shiftTo re-indents the element's rendered lines to indent.
func (e *Element) shiftTo(indent string) {
	if !e.shifted {
		e.shiftFrom = e.lineIndent()
		e.shifted = true
	}
	e.indent = indent
}

func (d *Document) insert(parent *Element, ins models.CodeInsert) error {
	indent := parent.childIndent()
	var el *Element
	code := ins.CodeBlock
	if code == nil && ins.PasteParams != nil {
		code = ins.PasteParams.CodeBlock
	}
	if code != nil && strings.TrimSpace(*code) != "" {
		var err error
		if el, err = d.elementFromCode(*code, ins.OID, indent); err != nil {
			return err
		}
	} else {
		el = d.newElement(ins, indent)
	}
	parent.insertChildAt(parent.childPos(ins.Location), &Child{Lead: "\n" + indent, Elem: el, start: -1, end: -1, doc: d})
	return nil
}

// newElement builds an element from an insertion descriptor.
func (d *Document) newElement(ins models.CodeInsert, indent string) *Element {
	el := &Element{
		Name:       ins.TagName,
		doc:        d,
		start:      -1,
		end:        -1,
		closeStart: -1,
		indent:     indent,
	}
	names := make([]string, 0, len(ins.Attributes))
	for name := range ins.Attributes {
		if name != OIDAttr {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		el.setStringAttr(name, ins.Attributes[name])
	}
	if ins.OID != "" {
		el.setStringAttr(OIDAttr, ins.OID)
	}

	hasText := ins.TextContent != nil && *ins.TextContent != ""
	if !hasText && len(ins.Children) == 0 {
		el.SelfClosing = true
		el.openTail = " "
		return el
	}
	if hasText {
		el.Children = append(el.Children, &Child{Text: escapeText(*ins.TextContent), start: -1, end: -1, doc: d})
	}
	for _, c := range ins.Children {
		child := d.newElement(c, indent+"  ")
		child.Parent = el
		el.Children = append(el.Children, &Child{Lead: "\n" + indent + "  ", Elem: child, start: -1, end: -1, doc: d})
	}
	if len(ins.Children) > 0 {
		el.trail = "\n" + indent
	}
	return el
}

// elementFromCode parses a pasted code block, stamps oid on its root element
// and re-indents it for insertion at indent.
func (d *Document) elementFromCode(code, oid, indent string) (*Element, error) {
	parser := d.parser
	if parser == nil {
		parser = NewParser()
	}
	snippet, err := parser.ParseLang(d.Path, []byte(strings.TrimSpace(code)), LangTSX)
	if err != nil {
		return nil, fmt.Errorf("parsing code block: %w", err)
	}
	if len(snippet.roots) == 0 {
		return nil, fmt.Errorf("%w: code block has no element", ErrNoAST)
	}
	root := snippet.roots[0]
	if oid != "" {
		root.setStringAttr(OIDAttr, oid)
	}
	return &Element{
		Name:       root.Name,
		doc:        d,
		start:      -1,
		end:        -1,
		closeStart: -1,
		indent:     indent,
		raw:        reindentBlock(root.Code(), indent),
	}, nil
}

// reindentBlock strips the common indentation of every line after the first
// and prefixes those lines with indent.
func reindentBlock(text, indent string) string {
	lines := strings.Split(text, "\n")
	if len(lines) == 1 {
		return text
	}
	base := -1
	for _, l := range lines[1:] {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if base < 0 || n < base {
			base = n
		}
	}
	if base < 0 {
		base = 0
	}
	for i := 1; i < len(lines); i++ {
		l := lines[i]
		if strings.TrimSpace(l) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = indent + l[base:]
	}
	return strings.Join(lines, "\n")
}

func (d *Document) move(container *Element, mv models.CodeMove) error {
	el := d.Element(mv.OID)
	if el == nil {
		return fmt.Errorf("%w: %s", ErrElementNotFound, mv.OID)
	}
	for p := container; p != nil; p = p.Parent {
		if p == el {
			return fmt.Errorf("cannot move %s into itself", mv.OID)
		}
	}
	old := el.Parent
	if old == nil {
		return fmt.Errorf("%w: %s", ErrNotChild, mv.OID)
	}
	i := old.childIndex(el)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotChild, mv.OID)
	}

	indent := container.childIndent()
	if old == container {
		c := old.Children[i]
		old.Children = append(old.Children[:i], old.Children[i+1:]...)
		container.insertChildAt(container.childPos(mv.Location), c)
		return nil
	}
	old.removeChildAt(i)
	el.shiftTo(indent)
	container.insertChildAt(container.childPos(mv.Location), &Child{Lead: "\n" + indent, Elem: el, start: -1, end: -1, doc: d})
	return nil
}

func (d *Document) group(parent *Element, g models.CodeGroup) error {
	want := make(map[string]bool, len(g.Children))
	for _, t := range g.Children {
		want[t.OID] = true
	}
	var picked []int
	for i, c := range parent.Children {
		if c.Elem != nil && want[c.Elem.OID()] {
			picked = append(picked, i)
		}
	}
	if len(picked) == 0 {
		return fmt.Errorf("%w: no children of %s to group", ErrElementNotFound, parent.OID())
	}

	indent := parent.childIndent()
	container := d.newElement(models.CodeInsert{
		TagName:    g.Container.TagName,
		Attributes: g.Container.Attributes,
		OID:        g.Container.OID,
	}, indent)
	container.SelfClosing = false
	container.openTail = ""
	container.trail = "\n" + indent

	first := parent.Children[picked[0]]
	for _, i := range picked {
		el := parent.Children[i].Elem
		el.shiftTo(indent + "  ")
		el.Parent = container
		container.Children = append(container.Children, &Child{Lead: "\n" + indent + "  ", Elem: el, start: -1, end: -1, doc: d})
	}

	kept := make([]*Child, 0, len(parent.Children)-len(picked)+1)
	next := 0
	for i, c := range parent.Children {
		if next < len(picked) && picked[next] == i {
			if i == picked[0] {
				kept = append(kept, &Child{Lead: first.Lead, Elem: container, start: -1, end: -1, doc: d})
			}
			next++
			continue
		}
		kept = append(kept, c)
	}
	parent.Children = kept
	container.Parent = parent
	parent.childrenDirty = true
	return nil
}

func (d *Document) ungroup(parent *Element, u models.CodeUngroup) error {
	idx := -1
	for i, c := range parent.Children {
		if c.Elem != nil && c.Elem.OID() == u.Container.OID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: container %s in %s", ErrElementNotFound, u.Container.OID, parent.OID())
	}

	slot := parent.Children[idx]
	container := slot.Elem
	indent := parent.childIndent()
	var spliced []*Child
	for _, c := range container.Children {
		if c.isBlank() {
			continue
		}
		lead := "\n" + indent
		if len(spliced) == 0 {
			lead = slot.Lead
		}
		moved := &Child{Lead: lead, Elem: c.Elem, Text: c.Text, start: c.start, end: c.end, nested: c.nested, doc: c.doc}
		if c.Elem != nil {
			c.Elem.shiftTo(indent)
			c.Elem.Parent = parent
			moved.start, moved.end = -1, -1
		}
		for _, n := range c.nested {
			n.Parent = parent
		}
		spliced = append(spliced, moved)
	}
	container.detached = true

	children := make([]*Child, 0, len(parent.Children)+len(spliced))
	children = append(children, parent.Children[:idx]...)
	children = append(children, spliced...)
	children = append(children, parent.Children[idx+1:]...)
	parent.Children = children
	parent.childrenDirty = true
	return nil
}
