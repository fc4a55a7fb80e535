// Package style provides the translation of CSS style changes into
// utility classes and the merging of class lists.
package style

import (
	"io"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"

	"loom/internal/models"
)

// Translator converts style maps into utility class lists.
type Translator struct {
	log *slog.Logger
}

// NewTranslator creates a translator. A nil logger uses slog.Default().
func NewTranslator(logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{log: logger.With("component", "style")}
}

// ClassesForStyles returns the class list for the given style changes on
// the element identified by oid. Ordinary values go through the CSS
// translation; custom values use a property-specific formatter and are
// skipped when no formatter exists.
func (t *Translator) ClassesForStyles(oid string, styles models.StyleMap) string {
	normal := make(map[string]string)
	var custom []string
	for prop, change := range styles {
		if change.IsCustom() {
			custom = append(custom, prop)
			continue
		}
		normal[prop] = change.Value
	}

	classes := t.ClassesForCSS(oid, normal)

	sort.Strings(custom)
	var extra []string
	for _, prop := range custom {
		name := Kebab(prop)
		format, ok := customFormatters[name]
		if !ok {
			continue
		}
		if cls := format(customVal(styles[prop].Value)); cls != "" {
			extra = append(extra, cls)
		}
	}
	return MergeClasses(classes, strings.Join(extra, " "))
}

// ClassesForCSS translates plain property/value pairs into utility classes.
func (t *Translator) ClassesForCSS(oid string, styles map[string]string) string {
	if len(styles) == 0 {
		return ""
	}
	rule := buildRule(oid, styles)

	var classes []string
	p := css.NewParser(parse.NewInputString(rule), false)
	for {
		gt, _, data := p.Next()
		if gt == css.ErrorGrammar {
			if err := p.Err(); err != nil && err != io.EOF {
				t.log.Debug("parsing style rule", "oid", oid, "error", err)
			}
			break
		}
		if gt != css.DeclarationGrammar {
			continue
		}
		prop := strings.ToLower(string(data))
		value := declarationValue(p.Values())
		cls := t.classFor(prop, value)
		if cls == "" {
			continue
		}
		classes = append(classes, cls)
	}
	return strings.Join(classes, " ")
}

func (t *Translator) classFor(prop, value string) string {
	if value == "" {
		return ""
	}
	format, ok := propertyMap[prop]
	if !ok {
		t.log.Debug("no utility class for property", "property", prop, "value", value)
		return ""
	}
	cls := format(value)
	if cls == "" {
		t.log.Debug("no utility class for value", "property", prop, "value", value)
	}
	return cls
}

// buildRule renders "<oid> { prop: value; ... }" with properties in sorted
// order so output is deterministic.
func buildRule(oid string, styles map[string]string) string {
	props := make([]string, 0, len(styles))
	for prop := range styles {
		props = append(props, prop)
	}
	sort.Strings(props)

	var b strings.Builder
	b.WriteString(oid)
	b.WriteString(" {")
	for _, prop := range props {
		value := strings.TrimSpace(styles[prop])
		if value == "" {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(Kebab(prop))
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte(';')
	}
	b.WriteString(" }")
	return b.String()
}

func declarationValue(tokens []css.Token) string {
	var b strings.Builder
	for _, tok := range tokens {
		if tok.TokenType == css.WhitespaceToken {
			b.WriteByte(' ')
			continue
		}
		b.Write(tok.Data)
	}
	value := strings.Join(strings.Fields(b.String()), " ")
	value = strings.TrimSuffix(value, "!important")
	return strings.TrimSpace(value)
}

// Kebab converts a camelCase property name to kebab-case. Names already in
// kebab-case are returned unchanged.
func Kebab(prop string) string {
	if strings.ContainsRune(prop, '-') {
		return strings.ToLower(prop)
	}
	var b strings.Builder
	for i, r := range prop {
		if unicode.IsUpper(r) {
			if i > 0 || isVendor(prop) {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isVendor(prop string) bool {
	for _, prefix := range []string{"Webkit", "Moz", "Ms"} {
		if strings.HasPrefix(prop, prefix) {
			return true
		}
	}
	return false
}
