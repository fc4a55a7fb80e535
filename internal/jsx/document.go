package jsx

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// OIDAttr is the attribute that carries an element's origin identifier.
const OIDAttr = "data-oid"

// Document is a parsed source file. Rendering is lossless: every region the
// mutations did not touch is copied from the source verbatim.
type Document struct {
	Path string
	Lang Language

	parser *Parser
	src    []byte
	roots  []*Element
	all    []*Element
	byOID  map[string]*Element
}

// Element is a JSX element. Elements created by mutations have no source
// span and are always rendered from the model.
type Element struct {
	Name        string
	Attrs       []*Attr
	Children    []*Child
	SelfClosing bool
	Parent      *Element

	doc        *Document
	start, end int
	openEnd    int
	closeStart int
	startPt    sitter.Point
	endPt      sitter.Point

	openTail      string
	trail         string
	openDirty     bool
	childrenDirty bool

	// raw, when set, replaces the whole rendering.
	raw string
	// indent is the line indent of created or moved elements. Moved
	// elements render with shiftFrom replaced by indent on every line.
	indent    string
	shiftFrom string
	shifted   bool
	detached  bool
}

// Attr is one attribute (or spread) inside an opening tag.
type Attr struct {
	Lead string
	Name string

	kind   attrKind
	value  string
	start  int
	end    int
	nested []*Element
	text   string
	doc    *Document
}

type attrKind int

const (
	attrOther attrKind = iota
	attrBare
	attrString
	attrExpr
)

// Child is one child of an element: an element, text or expression.
type Child struct {
	Lead string
	Elem *Element
	Text string

	start  int
	end    int
	nested []*Element
	doc    *Document
}

// Element returns the element stamped with oid, or nil.
func (d *Document) Element(oid string) *Element {
	e := d.byOID[oid]
	if e == nil || !e.attached() {
		return nil
	}
	return e
}

// Elements returns every element in document order.
func (d *Document) Elements() []*Element {
	out := make([]*Element, 0, len(d.all))
	for _, e := range d.all {
		if e.attached() {
			out = append(out, e)
		}
	}
	return out
}

// Source returns the text the document was parsed from.
func (d *Document) Source() string {
	return string(d.src)
}

// Render prints the document in canonical form.
func (d *Document) Render() string {
	var b strings.Builder
	d.renderSpan(&b, 0, len(d.src), d.roots)
	return Canonical(b.String())
}

// Canonical normalizes printed source: LF line endings and exactly one
// trailing newline. Line contents are left alone so string and template
// literal values never change.
func Canonical(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	out := strings.TrimRight(s, "\n")
	if strings.TrimSpace(out) == "" {
		return ""
	}
	return out + "\n"
}

func (d *Document) collect(n *sitter.Node, parent *Element) []*Element {
	switch n.Type() {
	case "jsx_element", "jsx_self_closing_element":
		return []*Element{d.build(n, parent)}
	}
	var out []*Element
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		out = append(out, d.collect(c, parent)...)
	}
	return out
}

func (d *Document) build(n *sitter.Node, parent *Element) *Element {
	start, startPt := d.tagStart(n)
	e := &Element{
		Parent:     parent,
		doc:        d,
		start:      start,
		end:        d.tagEnd(n),
		closeStart: -1,
		startPt:    startPt,
		endPt:      n.EndPoint(),
	}
	d.all = append(d.all, e)

	if n.Type() == "jsx_self_closing_element" {
		e.SelfClosing = true
		e.openEnd = e.end
		d.buildOpen(e, n)
		return e
	}

	count := int(n.ChildCount())
	open := n.Child(0)
	closeTag := n.Child(count - 1)
	d.buildOpen(e, open)
	e.openEnd = d.tagEnd(open)
	e.closeStart, _ = d.tagStart(closeTag)

	prev := e.openEnd
	for i := 1; i < count-1; i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		ch := &Child{doc: d}
		switch c.Type() {
		case "jsx_element", "jsx_self_closing_element":
			ch.Elem = d.build(c, e)
			ch.start, ch.end = ch.Elem.start, ch.Elem.end
		case "jsx_text":
			ch.start, ch.end = int(c.StartByte()), int(c.EndByte())
			ch.nested = d.collect(c, e)
		default:
			ch.start, _ = d.tagStart(c)
			ch.end = d.tagEnd(c)
			ch.nested = d.collect(c, e)
		}
		if ch.start < prev {
			ch.start = prev
		}
		ch.Lead = string(d.src[prev:ch.start])
		e.Children = append(e.Children, ch)
		prev = ch.end
	}
	if prev > e.closeStart {
		prev = e.closeStart
	}
	e.trail = string(d.src[prev:e.closeStart])
	return e
}

// tagStart returns the first non-blank byte of n and its point. Depending
// on the grammar version, JSX nodes can begin at the whitespace before
// their '<'.
func (d *Document) tagStart(n *sitter.Node) (int, sitter.Point) {
	pos, end := int(n.StartByte()), int(n.EndByte())
	pt := n.StartPoint()
	for pos < end && isBlankByte(d.src[pos]) {
		if d.src[pos] == '\n' {
			pt.Row++
			pt.Column = 0
		} else {
			pt.Column++
		}
		pos++
	}
	return pos, pt
}

// tagEnd returns the end of n with trailing whitespace dropped.
func (d *Document) tagEnd(n *sitter.Node) int {
	start, end := int(n.StartByte()), int(n.EndByte())
	for end > start && isBlankByte(d.src[end-1]) {
		end--
	}
	return end
}

func isBlankByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func (d *Document) buildOpen(e *Element, open *sitter.Node) {
	count := int(open.ChildCount())
	tail := count - 1
	if e.SelfClosing {
		for i := count - 1; i >= 0; i-- {
			if c := open.Child(i); c != nil && c.Type() == "/" {
				tail = i
				break
			}
		}
	}

	openStart, _ := d.tagStart(open)
	ltEnd := openStart + 1
	if lt := open.Child(0); lt != nil && lt.Type() == "<" {
		ltEnd = d.tagEnd(lt)
	}
	nameStart, nameEnd := ltEnd, ltEnd
	if name := open.ChildByFieldName("name"); name != nil {
		nameStart, _ = d.tagStart(name)
		nameEnd = d.tagEnd(name)
	} else if first := open.NamedChild(0); first != nil && isElementName(first.Type()) {
		nameStart, _ = d.tagStart(first)
		nameEnd = d.tagEnd(first)
	}
	if args := open.ChildByFieldName("type_arguments"); args != nil && d.tagEnd(args) > nameEnd {
		nameEnd = d.tagEnd(args)
	}
	e.Name = strings.TrimSpace(string(d.src[nameStart:nameEnd]))
	if nameEnd < ltEnd {
		nameEnd = ltEnd
	}

	prev := nameEnd
	for i := 0; i < tail; i++ {
		c := open.Child(i)
		if c == nil || int(c.StartByte()) < nameEnd {
			continue
		}
		a := &Attr{
			end:    d.tagEnd(c),
			nested: d.collect(c, e),
			doc:    d,
		}
		a.start, _ = d.tagStart(c)
		a.Lead = string(d.src[prev:a.start])
		if c.Type() == "jsx_attribute" {
			d.parseAttr(a, c)
		}
		e.Attrs = append(e.Attrs, a)
		prev = a.end
	}
	tailStart := d.tagEnd(open) - 1
	if c := open.Child(tail); c != nil {
		tailStart, _ = d.tagStart(c)
	}
	if tailStart < prev {
		tailStart = prev
	}
	e.openTail = string(d.src[prev:tailStart])
}

func isElementName(kind string) bool {
	switch kind {
	case "identifier", "member_expression", "nested_identifier", "jsx_namespace_name", "property_identifier":
		return true
	}
	return false
}

func (d *Document) parseAttr(a *Attr, n *sitter.Node) {
	a.kind = attrBare
	count := int(n.ChildCount())
	if count == 0 {
		return
	}
	a.Name = n.Child(0).Content(d.src)
	for i := 1; i < count-1; i++ {
		if n.Child(i).Type() != "=" {
			continue
		}
		v := n.Child(i + 1)
		raw := v.Content(d.src)
		switch v.Type() {
		case "string":
			a.kind = attrString
			if len(raw) >= 2 {
				a.value = raw[1 : len(raw)-1]
			}
		case "jsx_expression":
			a.kind = attrExpr
			if len(raw) >= 2 {
				a.value = strings.TrimSpace(raw[1 : len(raw)-1])
			}
		default:
			a.kind = attrOther
			a.value = raw
		}
		return
	}
}

func (d *Document) renderSpan(b *strings.Builder, start, end int, nested []*Element) {
	pos := start
	for _, n := range nested {
		if n.start < pos || n.end > end {
			continue
		}
		b.Write(d.src[pos:n.start])
		n.render(b)
		pos = n.end
	}
	b.Write(d.src[pos:end])
}

// lineIndent returns the leading whitespace of the line containing pos.
func (d *Document) lineIndent(pos int) string {
	lineStart := pos
	for lineStart > 0 && d.src[lineStart-1] != '\n' {
		lineStart--
	}
	i := lineStart
	for i < len(d.src) && (d.src[i] == ' ' || d.src[i] == '\t') {
		i++
	}
	return string(d.src[lineStart:i])
}

// OID returns the element's data-oid, or "".
func (e *Element) OID() string {
	if a := e.Attr(OIDAttr); a != nil && a.kind == attrString {
		return a.value
	}
	return ""
}

// Attr returns the named attribute, or nil.
func (e *Element) Attr(name string) *Attr {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Code returns the element's rendered source.
func (e *Element) Code() string {
	var b strings.Builder
	e.render(&b)
	return b.String()
}

func (e *Element) created() bool {
	return e.start < 0
}

// lineIndent is the indentation of the line the element starts on, in the
// coordinates of its own rendered body.
func (e *Element) lineIndent() string {
	switch {
	case e.shifted:
		return e.shiftFrom
	case e.created():
		return e.indent
	default:
		return e.doc.lineIndent(e.start)
	}
}

// attached reports whether the element is still part of the document.
func (e *Element) attached() bool {
	for p := e; p != nil; p = p.Parent {
		if p.detached {
			return false
		}
	}
	return true
}

// childIndent is the indentation used for new children.
func (e *Element) childIndent() string {
	for _, c := range e.Children {
		if i := strings.LastIndexByte(c.Lead, '\n'); i >= 0 {
			return c.Lead[i+1:]
		}
	}
	return e.lineIndent() + "  "
}

func (e *Element) render(b *strings.Builder) {
	if e.shifted && e.shiftFrom != e.indent {
		var inner strings.Builder
		e.renderBody(&inner)
		b.WriteString(strings.ReplaceAll(inner.String(), "\n"+e.shiftFrom, "\n"+e.indent))
		return
	}
	e.renderBody(b)
}

func (e *Element) renderBody(b *strings.Builder) {
	if e.raw != "" {
		b.WriteString(e.raw)
		return
	}
	if e.created() || e.openDirty {
		b.WriteByte('<')
		b.WriteString(e.Name)
		for _, a := range e.Attrs {
			b.WriteString(a.Lead)
			a.render(b)
		}
		b.WriteString(e.openTail)
		if e.SelfClosing {
			b.WriteString("/>")
		} else {
			b.WriteByte('>')
		}
	} else {
		e.doc.renderSpan(b, e.start, e.openEnd, e.attrNested())
	}
	if e.SelfClosing {
		return
	}

	if e.created() || e.childrenDirty {
		for _, c := range e.Children {
			b.WriteString(c.Lead)
			c.render(b)
		}
		b.WriteString(e.trail)
	} else {
		e.doc.renderSpan(b, e.openEnd, e.closeStart, e.childNested())
	}

	if e.created() || e.closeStart < 0 {
		b.WriteString("</")
		b.WriteString(e.Name)
		b.WriteByte('>')
	} else {
		b.Write(e.doc.src[e.closeStart:e.end])
	}
}

func (e *Element) attrNested() []*Element {
	var out []*Element
	for _, a := range e.Attrs {
		out = append(out, a.nested...)
	}
	return out
}

func (e *Element) childNested() []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Elem != nil {
			out = append(out, c.Elem)
			continue
		}
		out = append(out, c.nested...)
	}
	return out
}

func (a *Attr) render(b *strings.Builder) {
	if a.start >= 0 {
		a.doc.renderSpan(b, a.start, a.end, a.nested)
		return
	}
	b.WriteString(a.text)
}

// StringValue returns the value of a string literal attribute.
func (a *Attr) StringValue() (string, bool) {
	return a.value, a.kind == attrString
}

func (c *Child) render(b *strings.Builder) {
	switch {
	case c.Elem != nil:
		c.Elem.render(b)
	case c.start >= 0:
		c.doc.renderSpan(b, c.start, c.end, c.nested)
	default:
		b.WriteString(c.Text)
	}
}

// isBlank reports whether the child renders as whitespace only.
func (c *Child) isBlank() bool {
	if c.Elem != nil {
		return false
	}
	if c.start >= 0 {
		return strings.TrimSpace(string(c.doc.src[c.start:c.end])) == ""
	}
	return strings.TrimSpace(c.Text) == ""
}
