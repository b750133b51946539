package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mangler stands in for a Markdown engine that would eat LaTeX control
// characters if they reached it.
type mangler struct{}

func (mangler) Render(text string) (string, error) {
	out := strings.ReplaceAll(text, "_", "<em>")
	out = strings.ReplaceAll(out, `\`, "")
	return out, nil
}

func TestMathProtectsSpansFromRenderer(t *testing.T) {
	out, err := Math(`loss is $L_\theta$ under_score outside`, mangler{})
	require.NoError(t, err)
	assert.Contains(t, out, `$L_\theta$`)
	assert.Contains(t, out, "under<em>score")
}

func TestMathNoSegmentsPassesThrough(t *testing.T) {
	out, err := Math("plain text", mangler{})
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)
}

func TestHTMLRenderer(t *testing.T) {
	out, err := NewHTML().Render("some **bold** text")
	require.NoError(t, err)
	assert.Contains(t, out, "<strong>bold</strong>")
}

func TestHTMLPipelineKeepsLatexVerbatim(t *testing.T) {
	out, err := Math(`the variance $\sigma_x^2$ grows`, NewHTML())
	require.NoError(t, err)
	assert.Contains(t, out, `$\sigma_x^2$`)
	assert.NotContains(t, out, "@@MATH")
}

func TestTerminalTypesetReadiness(t *testing.T) {
	ts := NewTerminal(nil)
	select {
	case <-ts.Ready():
		t.Fatal("typesetter reported ready before SignalReady")
	default:
	}
	ts.SignalReady()
	ts.SignalReady() // idempotent
	select {
	case <-ts.Ready():
	default:
		t.Fatal("typesetter not ready after SignalReady")
	}
}

func TestTerminalTypeset(t *testing.T) {
	ts := NewTerminal(nil)
	ts.SignalReady()

	cases := map[string]string{
		"so $x^2$ holds":       "so x² holds",
		`area $\pi r^2$ here`:  "area π r² here",
		`$$\sum_i x_i$$`:       "∑ᵢ xᵢ",
		`\(\alpha \to \beta\)`: "α → β",
		`$\frac{a}{b}$`:        "a/b",
		`$\frac{n+1}{2}$`:      "(n+1)/2",
		`$x^{10}$`:             "x¹⁰",
		"no math at all":       "no math at all",
	}
	for in, want := range cases {
		assert.Equal(t, want, ts.Typeset(in), "input %q", in)
	}
}

func TestTerminalTypesetDecorate(t *testing.T) {
	ts := NewTerminal(func(s string) string { return "<" + s + ">" })
	ts.SignalReady()
	assert.Equal(t, "got <x²>", ts.Typeset("got $x^2$"))
}

func TestTerminalTypesetLeavesUnknownCommands(t *testing.T) {
	ts := NewTerminal(nil)
	ts.SignalReady()
	out := ts.Typeset(`$\operatorname{argmax} f$`)
	assert.Contains(t, out, "argmax")
}
