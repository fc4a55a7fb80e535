// Package jsx provides Tree-sitter based parsing, lossless printing and
// oid-keyed mutation of JSX and TSX source files.
package jsx

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// ErrNoAST is returned when a file cannot be parsed into a usable tree.
var ErrNoAST = errors.New("no ast found for file")

// Language selects the grammar used for a file.
type Language string

const (
	LangTSX        Language = "tsx"
	LangTypeScript Language = "typescript"
	LangJavaScript Language = "javascript"
)

// LanguageFor picks the grammar from a file extension. Unknown extensions
// use the TSX grammar, which accepts plain JavaScript and JSX.
func LanguageFor(path string) Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return LangTypeScript
	case ".js", ".mjs", ".cjs":
		return LangJavaScript
	default:
		return LangTSX
	}
}

// IsJSXFile reports whether path holds JSX or TSX source.
func IsJSXFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsx", ".tsx":
		return true
	}
	return false
}

// Parser wraps the Tree-sitter parsers for each supported language. It is
// safe for concurrent use.
type Parser struct {
	mu      sync.Mutex
	parsers map[Language]*sitter.Parser
}

// NewParser creates a parser for TSX, TypeScript and JavaScript.
func NewParser() *Parser {
	langs := map[Language]*sitter.Language{
		LangTSX:        tsx.GetLanguage(),
		LangTypeScript: typescript.GetLanguage(),
		LangJavaScript: javascript.GetLanguage(),
	}
	parsers := make(map[Language]*sitter.Parser, len(langs))
	for name, lang := range langs {
		p := sitter.NewParser()
		p.SetLanguage(lang)
		parsers[name] = p
	}
	return &Parser{parsers: parsers}
}

// Parse parses the file at path into a Document.
func (p *Parser) Parse(path string, content []byte) (*Document, error) {
	return p.ParseLang(path, content, LanguageFor(path))
}

// ParseLang parses content with an explicit grammar.
func (p *Parser) ParseLang(path string, content []byte, lang Language) (*Document, error) {
	p.mu.Lock()
	parser, ok := p.parsers[lang]
	if !ok {
		parser = p.parsers[LangTSX]
	}
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoAST, path, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoAST, path)
	}
	root := tree.RootNode()
	if root == nil || root.HasError() {
		return nil, fmt.Errorf("%w: %s: syntax error", ErrNoAST, path)
	}

	doc := &Document{
		Path:   path,
		Lang:   lang,
		parser: p,
		src:    content,
	}
	doc.roots = doc.collect(root, nil)
	doc.reindex()
	return doc, nil
}
