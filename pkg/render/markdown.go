// Package render turns raw assistant replies into displayable text. The
// Markdown engine and the math typesetter are external collaborators behind
// interfaces; the math protection pipeline (extract, render, restore) wires
// them together.
package render

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"mathchat/pkg/mathtex"
)

// Markdown renders Markdown source to a display format.
type Markdown interface {
	Render(text string) (string, error)
}

// Math runs raw text through the protection pipeline: LaTeX spans are
// extracted to placeholder tokens, the placeholder-bearing text is rendered,
// and the spans are restored verbatim into the rendered output.
func Math(raw string, md Markdown) (string, error) {
	x := mathtex.Extract(raw)
	out, err := md.Render(x.Replaced)
	if err != nil {
		return "", err
	}
	return x.Restore(out), nil
}

// ANSI renders Markdown to ANSI-styled terminal text using glamour.
type ANSI struct {
	mu sync.Mutex
	tr *glamour.TermRenderer
}

func NewANSI(wordWrap int) (*ANSI, error) {
	tr, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return nil, fmt.Errorf("building terminal renderer: %w", err)
	}
	return &ANSI{tr: tr}, nil
}

func (a *ANSI) Render(text string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out, err := a.tr.Render(text)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}

// HTML renders Markdown to an HTML fragment using gomarkdown. The parser is
// stateful, so a fresh one is built per call.
type HTML struct{}

func NewHTML() *HTML {
	return &HTML{}
}

func (h *HTML) Render(text string) (string, error) {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	r := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	return string(markdown.Render(p.Parse([]byte(text)), r)), nil
}
