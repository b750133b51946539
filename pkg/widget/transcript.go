package widget

import (
	"strings"
	"sync"
)

type bubbleKind int

const (
	bubbleUser bubbleKind = iota
	bubbleAssistant
	bubbleError
	bubbleTyping
)

// Bubble is one entry of the visible message list.
type Bubble struct {
	Kind bubbleKind
	Text string
}

// Transcript is the message list backing the chat panel. The controller
// mutates it from the UI loop; the typeset goroutine reads and rewrites
// finished assistant bubbles, hence the lock. gen counts wholesale
// replacements of the list: Clear and Reset bump it, invalidating bubble
// indices handed out before them.
type Transcript struct {
	mu      sync.Mutex
	gen     uint64
	bubbles []Bubble
}

// NewTranscript starts with the single default assistant greeting.
func NewTranscript(greeting string) *Transcript {
	t := &Transcript{}
	t.Reset(greeting)
	return t
}

// Reset replaces everything with the single default greeting bubble.
func (t *Transcript) Reset(greeting string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.bubbles = []Bubble{{Kind: bubbleAssistant, Text: greeting}}
}

// Clear removes all bubbles, greeting included. Used before history replay.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.bubbles = nil
}

func (t *Transcript) AppendUser(text string) {
	t.append(Bubble{Kind: bubbleUser, Text: text})
}

// AppendAssistant returns the bubble index and the current generation so the
// typeset pass can rewrite this one bubble later. The rewrite is refused if
// the transcript has been cleared or reset in between.
func (t *Transcript) AppendAssistant(text string) (int, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bubbles = append(t.bubbles, Bubble{Kind: bubbleAssistant, Text: text})
	return len(t.bubbles) - 1, t.gen
}

func (t *Transcript) AppendError(text string) {
	t.append(Bubble{Kind: bubbleError, Text: text})
}

// ShowTyping appends the transient typing indicator; HideTyping removes it
// wherever it sits.
func (t *Transcript) ShowTyping() {
	t.append(Bubble{Kind: bubbleTyping})
}

func (t *Transcript) HideTyping() {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.bubbles[:0]
	for _, b := range t.bubbles {
		if b.Kind != bubbleTyping {
			kept = append(kept, b)
		}
	}
	t.bubbles = kept
}

// Assistant returns the text of bubble i when it is an assistant bubble from
// generation gen. A stale generation means the list was replaced since the
// index was issued; the caller must not touch the bubble now living there.
func (t *Transcript) Assistant(i int, gen uint64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || i < 0 || i >= len(t.bubbles) || t.bubbles[i].Kind != bubbleAssistant {
		return "", false
	}
	return t.bubbles[i].Text, true
}

// RewriteAssistant is a no-op when gen is stale or i no longer names an
// assistant bubble.
func (t *Transcript) RewriteAssistant(i int, gen uint64, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || i < 0 || i >= len(t.bubbles) || t.bubbles[i].Kind != bubbleAssistant {
		return
	}
	t.bubbles[i].Text = text
}

// Bubbles returns a snapshot of the message list.
func (t *Transcript) Bubbles() []Bubble {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Bubble, len(t.bubbles))
	copy(out, t.bubbles)
	return out
}

// View renders the transcript as tview markup.
func (t *Transcript) View() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	for i, bub := range t.bubbles {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch bub.Kind {
		case bubbleUser:
			b.WriteString("[#8be9fd::b]You[-::-]\n")
			b.WriteString(bub.Text)
		case bubbleAssistant:
			b.WriteString("[#50fa7b::b]Assistant[-::-]\n")
			b.WriteString(bub.Text)
		case bubbleError:
			b.WriteString("[red]")
			b.WriteString(bub.Text)
			b.WriteString("[-]")
		case bubbleTyping:
			b.WriteString("[::d]Assistant is typing…[::-]")
		}
	}
	return b.String()
}

func (t *Transcript) append(b Bubble) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bubbles = append(t.bubbles, b)
}
