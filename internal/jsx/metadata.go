package jsx

// ElementMetadata locates a stamped element in its source file. Lines are
// 1-based, columns 0-based byte offsets.
type ElementMetadata struct {
	OID       string `json:"oid"`
	Path      string `json:"path"`
	TagName   string `json:"tagName"`
	StartLine int    `json:"startLine"`
	StartCol  int    `json:"startCol"`
	EndLine   int    `json:"endLine"`
	EndCol    int    `json:"endCol"`
	Code      string `json:"code"`
}

// Metadata returns the metadata of every stamped element as parsed. The
// first element wins when an oid appears more than once.
func (d *Document) Metadata() []ElementMetadata {
	var out []ElementMetadata
	seen := make(map[string]bool)
	for _, e := range d.all {
		oid := e.OID()
		if oid == "" || seen[oid] || e.created() {
			continue
		}
		seen[oid] = true
		out = append(out, ElementMetadata{
			OID:       oid,
			Path:      d.Path,
			TagName:   e.Name,
			StartLine: int(e.startPt.Row) + 1,
			StartCol:  int(e.startPt.Column),
			EndLine:   int(e.endPt.Row) + 1,
			EndCol:    int(e.endPt.Column),
			Code:      string(d.src[e.start:e.end]),
		})
	}
	return out
}
