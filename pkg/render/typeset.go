package render

import (
	"regexp"
	"strings"
	"sync"

	"mathchat/pkg/mathtex"
)

// Typesetter converts restored LaTeX spans in rendered output into display
// math. Typesetting must not be attempted before Ready is closed; the engine
// may still be starting up when the first reply arrives.
type Typesetter interface {
	Ready() <-chan struct{}
	Typeset(rendered string) string
}

// Terminal typesets LaTeX into plain Unicode approximations (greek letters,
// operators, super- and subscripts, simple fractions). Commands without a
// Unicode counterpart are left as written. decorate, when non-nil, wraps
// each converted span for display styling.
type Terminal struct {
	ready    chan struct{}
	once     sync.Once
	decorate func(string) string
}

func NewTerminal(decorate func(string) string) *Terminal {
	if decorate == nil {
		decorate = func(s string) string { return s }
	}
	return &Terminal{ready: make(chan struct{}), decorate: decorate}
}

// SignalReady marks the engine usable. Safe to call more than once.
func (t *Terminal) SignalReady() {
	t.once.Do(func() { close(t.ready) })
}

func (t *Terminal) Ready() <-chan struct{} {
	return t.ready
}

func (t *Terminal) Typeset(rendered string) string {
	return mathtex.ReplaceSpans(rendered, func(span string) string {
		return t.decorate(latexToUnicode(span))
	})
}

var commandReplacer = strings.NewReplacer(
	`\leftarrow`, "←",
	`\rightarrow`, "→",
	`\approx`, "≈",
	`\lambda`, "λ",
	`\partial`, "∂",
	`\epsilon`, "ε",
	`\exists`, "∃",
	`\forall`, "∀",
	`\nabla`, "∇",
	`\infty`, "∞",
	`\notin`, "∉",
	`\Delta`, "Δ",
	`\Sigma`, "Σ",
	`\Omega`, "Ω",
	`\Theta`, "Θ",
	`\Lambda`, "Λ",
	`\theta`, "θ",
	`\sigma`, "σ",
	`\omega`, "ω",
	`\alpha`, "α",
	`\gamma`, "γ",
	`\delta`, "δ",
	`\times`, "×",
	`\ldots`, "…",
	`\cdot`, "·",
	`\dots`, "…",
	`\beta`, "β",
	`\sqrt`, "√",
	`\prod`, "∏",
	`\subset`, "⊂",
	`\leq`, "≤",
	`\geq`, "≥",
	`\neq`, "≠",
	`\sum`, "∑",
	`\int`, "∫",
	`\Phi`, "Φ",
	`\phi`, "φ",
	`\psi`, "ψ",
	`\chi`, "χ",
	`\tau`, "τ",
	`\rho`, "ρ",
	`\eta`, "η",
	`\cup`, "∪",
	`\cap`, "∩",
	`\in`, "∈",
	`\to`, "→",
	`\pm`, "±",
	`\mp`, "∓",
	`\le`, "≤",
	`\ge`, "≥",
	`\ne`, "≠",
	`\pi`, "π",
	`\mu`, "μ",
	`\nu`, "ν",
	`\xi`, "ξ",
)

var (
	fracRe = regexp.MustCompile(`\\frac\{([^{}]*)\}\{([^{}]*)\}`)
	supRe  = regexp.MustCompile(`\^(?:\{([^{}]*)\}|(.))`)
	subRe  = regexp.MustCompile(`_(?:\{([^{}]*)\}|(.))`)
	sizers = regexp.MustCompile(`\\(left|right|big|Big)`)
	superscripts = map[rune]rune{
		'0': '⁰', '1': '¹', '2': '²', '3': '³', '4': '⁴',
		'5': '⁵', '6': '⁶', '7': '⁷', '8': '⁸', '9': '⁹',
		'+': '⁺', '-': '⁻', 'n': 'ⁿ', 'i': 'ⁱ',
	}
	subscripts = map[rune]rune{
		'0': '₀', '1': '₁', '2': '₂', '3': '₃', '4': '₄',
		'5': '₅', '6': '₆', '7': '₇', '8': '₈', '9': '₉',
		'+': '₊', '-': '₋', 'n': 'ₙ', 'i': 'ᵢ', 'k': 'ₖ',
		'm': 'ₘ', 'x': 'ₓ', 't': 'ₜ', 'j': 'ⱼ',
	}
)

func latexToUnicode(span string) string {
	s := stripDelimiters(span)

	s = fracRe.ReplaceAllStringFunc(s, func(m string) string {
		parts := fracRe.FindStringSubmatch(m)
		num, den := parts[1], parts[2]
		if len([]rune(num)) > 1 {
			num = "(" + num + ")"
		}
		if len([]rune(den)) > 1 {
			den = "(" + den + ")"
		}
		return num + "/" + den
	})

	s = commandReplacer.Replace(s)
	s = sizers.ReplaceAllString(s, "")
	s = scriptify(s, supRe, superscripts, "^")
	s = scriptify(s, subRe, subscripts, "_")
	s = strings.ReplaceAll(s, "{", "")
	s = strings.ReplaceAll(s, "}", "")
	return strings.TrimSpace(s)
}

func stripDelimiters(span string) string {
	switch {
	case strings.HasPrefix(span, "$$") && strings.HasSuffix(span, "$$") && len(span) >= 4:
		return strings.TrimSpace(span[2 : len(span)-2])
	case strings.HasPrefix(span, `\[`) && strings.HasSuffix(span, `\]`) && len(span) >= 4:
		return strings.TrimSpace(span[2 : len(span)-2])
	case strings.HasPrefix(span, `\(`) && strings.HasSuffix(span, `\)`) && len(span) >= 4:
		return strings.TrimSpace(span[2 : len(span)-2])
	case strings.HasPrefix(span, "$") && strings.HasSuffix(span, "$") && len(span) >= 2:
		return strings.TrimSpace(span[1 : len(span)-1])
	}
	return span
}

// scriptify rewrites ^{...}/^x (or _{...}/_x) arguments whose runes all have
// super/subscript forms; anything else keeps the original marker.
func scriptify(s string, re *regexp.Regexp, table map[rune]rune, marker string) string {
	return re.ReplaceAllStringFunc(s, func(m string) string {
		parts := re.FindStringSubmatch(m)
		arg := parts[1]
		if arg == "" {
			arg = parts[2]
		}
		var b strings.Builder
		for _, r := range arg {
			mapped, ok := table[r]
			if !ok {
				return marker + arg
			}
			b.WriteRune(mapped)
		}
		return b.String()
	})
}
