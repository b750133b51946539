// Package export writes a persisted conversation as a standalone HTML
// transcript. Assistant turns go through the same math protection pipeline
// as the live widget; typesetting is delegated to KaTeX in the browser, so
// the LaTeX spans must reach the document verbatim.
package export

import (
	"fmt"
	"html"
	"io"
	"strings"

	"mathchat/pkg/backend"
	"mathchat/pkg/render"
)

const docHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/katex@0.16.11/dist/katex.min.css">
<script defer src="https://cdn.jsdelivr.net/npm/katex@0.16.11/dist/katex.min.js"></script>
<script defer src="https://cdn.jsdelivr.net/npm/katex@0.16.11/dist/contrib/auto-render.min.js"
  onload="renderMathInElement(document.body,{delimiters:[
    {left:'$$',right:'$$',display:true},
    {left:'\\[',right:'\\]',display:true},
    {left:'$',right:'$',display:false},
    {left:'\\(',right:'\\)',display:false}
  ]});"></script>
<style>
body{max-width:48rem;margin:2rem auto;font-family:sans-serif;line-height:1.6}
.turn{margin:1rem 0;padding:.75rem 1rem;border-radius:.5rem}
.human{background:#e8f0fe;white-space:pre-wrap}
.ai{background:#f5f5f5}
.role{font-size:.8rem;font-weight:bold;color:#666;margin-bottom:.25rem}
</style>
</head>
<body>
<h1>%s</h1>
`

// HTML renders turns into w as a complete document. Human turns are escaped
// plain text; assistant turns are rendered Markdown with math restored for
// the browser-side typesetter. Assistant turns that render empty are
// skipped.
func HTML(title string, turns []backend.Turn, w io.Writer) error {
	md := render.NewHTML()

	esc := html.EscapeString(title)
	if _, err := fmt.Fprintf(w, docHead, esc, esc); err != nil {
		return err
	}

	for _, turn := range turns {
		if turn.Role == backend.RoleHuman {
			if _, err := fmt.Fprintf(w,
				"<div class=\"turn human\"><div class=\"role\">You</div>%s</div>\n",
				html.EscapeString(turn.Content)); err != nil {
				return err
			}
			continue
		}

		rendered, err := render.Math(turn.Content, md)
		if err != nil {
			return fmt.Errorf("rendering assistant turn: %w", err)
		}
		if strings.TrimSpace(rendered) == "" {
			continue
		}
		if _, err := fmt.Fprintf(w,
			"<div class=\"turn ai\"><div class=\"role\">Assistant</div>%s</div>\n",
			rendered); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, "</body>\n</html>\n")
	return err
}
