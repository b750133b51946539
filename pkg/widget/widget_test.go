package widget

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathchat/pkg/backend"
	"mathchat/pkg/config"
	"mathchat/pkg/render"
)

type fakeBackend struct {
	sends   atomic.Int64
	send    func(text string) (string, error)
	history func() ([]backend.Turn, error)
	clear   func() error
}

func (f *fakeBackend) Send(_ context.Context, text string) (string, error) {
	f.sends.Add(1)
	if f.send == nil {
		return "", nil
	}
	return f.send(text)
}

func (f *fakeBackend) History(context.Context) ([]backend.Turn, error) {
	if f.history == nil {
		return nil, nil
	}
	return f.history()
}

func (f *fakeBackend) Clear(context.Context) error {
	if f.clear == nil {
		return nil
	}
	return f.clear()
}

// identity markdown keeps bubble text assertable.
type identityMD struct{}

func (identityMD) Render(text string) (string, error) { return text, nil }

func newTestController(be Backend) *Controller {
	cfg := config.UIConfig{Title: "test", Greeting: "greetings!"}
	ts := render.NewTerminal(nil)
	ts.SignalReady()
	return NewController(cfg, be, identityMD{}, ts)
}

func kinds(bubbles []Bubble) []bubbleKind {
	out := make([]bubbleKind, len(bubbles))
	for i, b := range bubbles {
		out[i] = b.Kind
	}
	return out
}

func waitIdle(t *testing.T, c *Controller) {
	t.Helper()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.state == stateIdle
	}, time.Second, time.Millisecond)
}

func TestEmptySubmitRejected(t *testing.T) {
	be := &fakeBackend{}
	c := newTestController(be)

	assert.False(t, c.Submit(""))
	assert.False(t, c.Submit("   \n\t "))

	assert.Equal(t, []bubbleKind{bubbleAssistant}, kinds(c.trans.Bubbles()))
	assert.EqualValues(t, 0, be.sends.Load())
}

func TestSubmitSuccess(t *testing.T) {
	be := &fakeBackend{send: func(string) (string, error) { return "hello", nil }}
	c := newTestController(be)

	require.True(t, c.Submit("hi there"))
	waitIdle(t, c)

	bubbles := c.trans.Bubbles()
	require.Equal(t, []bubbleKind{bubbleAssistant, bubbleUser, bubbleAssistant}, kinds(bubbles))
	assert.Equal(t, "hi there", bubbles[1].Text)
	assert.Equal(t, "hello", bubbles[2].Text)
	assert.EqualValues(t, 1, be.sends.Load())
}

func TestSubmitFailure(t *testing.T) {
	be := &fakeBackend{send: func(string) (string, error) { return "", errors.New("connection refused") }}
	c := newTestController(be)

	require.True(t, c.Submit("hi"))
	waitIdle(t, c)

	bubbles := c.trans.Bubbles()
	// Typing indicator gone, exactly one error bubble, no assistant reply.
	require.Equal(t, []bubbleKind{bubbleAssistant, bubbleUser, bubbleError}, kinds(bubbles))
	assert.Equal(t, connectionErrText, bubbles[2].Text)
}

func TestSubmitEmptyReplyRendersNothing(t *testing.T) {
	be := &fakeBackend{send: func(string) (string, error) { return "  \n ", nil }}
	c := newTestController(be)

	require.True(t, c.Submit("hi"))
	waitIdle(t, c)

	assert.Equal(t, []bubbleKind{bubbleAssistant, bubbleUser}, kinds(c.trans.Bubbles()))
}

func TestOverlappingSubmissionRejected(t *testing.T) {
	release := make(chan struct{})
	be := &fakeBackend{send: func(string) (string, error) {
		<-release
		return "done", nil
	}}
	c := newTestController(be)

	require.True(t, c.Submit("first"))
	assert.False(t, c.Submit("second"), "second submission must be rejected while one is in flight")

	close(release)
	waitIdle(t, c)

	assert.EqualValues(t, 1, be.sends.Load())
}

func TestTypingIndicatorWhileSending(t *testing.T) {
	release := make(chan struct{})
	be := &fakeBackend{send: func(string) (string, error) {
		<-release
		return "done", nil
	}}
	c := newTestController(be)

	require.True(t, c.Submit("hi"))
	assert.Contains(t, kinds(c.trans.Bubbles()), bubbleTyping)

	close(release)
	waitIdle(t, c)
	assert.NotContains(t, kinds(c.trans.Bubbles()), bubbleTyping)
}

func TestHistoryReplay(t *testing.T) {
	be := &fakeBackend{history: func() ([]backend.Turn, error) {
		return []backend.Turn{
			{Role: backend.RoleHuman, Content: "what is variance?"},
			{Role: backend.RoleAI, Content: "it measures spread"},
		}, nil
	}}
	c := newTestController(be)

	c.LoadHistory()
	require.Eventually(t, func() bool { return len(c.trans.Bubbles()) == 2 }, time.Second, time.Millisecond)

	bubbles := c.trans.Bubbles()
	assert.Equal(t, []bubbleKind{bubbleUser, bubbleAssistant}, kinds(bubbles))
	assert.Equal(t, "what is variance?", bubbles[0].Text)
}

func TestHistorySkipsEmptyAssistantTurns(t *testing.T) {
	be := &fakeBackend{history: func() ([]backend.Turn, error) {
		return []backend.Turn{
			{Role: backend.RoleHuman, Content: "hello?"},
			{Role: backend.RoleAI, Content: "   "},
		}, nil
	}}
	c := newTestController(be)

	c.LoadHistory()
	require.Eventually(t, func() bool {
		bubbles := c.trans.Bubbles()
		return len(bubbles) == 1 && bubbles[0].Kind == bubbleUser
	}, time.Second, time.Millisecond)
}

func TestHistoryFailureKeepsGreeting(t *testing.T) {
	be := &fakeBackend{history: func() ([]backend.Turn, error) {
		return nil, errors.New("boom")
	}}
	c := newTestController(be)

	c.LoadHistory()
	time.Sleep(20 * time.Millisecond)

	bubbles := c.trans.Bubbles()
	require.Equal(t, []bubbleKind{bubbleAssistant}, kinds(bubbles))
	assert.Equal(t, "greetings!", bubbles[0].Text)
}

func TestHistoryEmptyKeepsGreeting(t *testing.T) {
	be := &fakeBackend{history: func() ([]backend.Turn, error) { return nil, nil }}
	c := newTestController(be)

	c.LoadHistory()
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, []bubbleKind{bubbleAssistant}, kinds(c.trans.Bubbles()))
}

func TestClearFailureLeavesPanelUntouched(t *testing.T) {
	be := &fakeBackend{
		send:  func(string) (string, error) { return "reply", nil },
		clear: func() error { return errors.New("backend down") },
	}
	c := newTestController(be)

	require.True(t, c.Submit("hi"))
	waitIdle(t, c)
	before := c.trans.Bubbles()

	c.ClearHistory()
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, before, c.trans.Bubbles())
}

func TestClearSuccessResetsToGreeting(t *testing.T) {
	be := &fakeBackend{send: func(string) (string, error) { return "reply", nil }}
	c := newTestController(be)

	require.True(t, c.Submit("hi"))
	waitIdle(t, c)

	c.ClearHistory()
	require.Eventually(t, func() bool {
		bubbles := c.trans.Bubbles()
		return len(bubbles) == 1 && bubbles[0].Text == "greetings!"
	}, time.Second, time.Millisecond)
}

// gatedTypesetter is ready from the start but blocks inside Typeset until
// released, holding the rewrite window open.
type gatedTypesetter struct {
	ready chan struct{}
	gate  chan struct{}
}

func newGatedTypesetter() *gatedTypesetter {
	g := &gatedTypesetter{ready: make(chan struct{}), gate: make(chan struct{})}
	close(g.ready)
	return g
}

func (g *gatedTypesetter) Ready() <-chan struct{} { return g.ready }

func (g *gatedTypesetter) Typeset(s string) string {
	<-g.gate
	return "typeset " + s
}

func TestClearDuringTypesetKeepsGreeting(t *testing.T) {
	be := &fakeBackend{history: func() ([]backend.Turn, error) {
		return []backend.Turn{{Role: backend.RoleAI, Content: "old stale reply"}}, nil
	}}
	ts := newGatedTypesetter()
	c := NewController(config.UIConfig{Title: "test", Greeting: "greetings!"}, be, identityMD{}, ts)

	c.LoadHistory()
	require.Eventually(t, func() bool {
		bubbles := c.trans.Bubbles()
		return len(bubbles) == 1 && bubbles[0].Text == "old stale reply"
	}, time.Second, time.Millisecond)

	// Clear lands while the typeset goroutine is still in flight.
	c.ClearHistory()
	require.Eventually(t, func() bool {
		bubbles := c.trans.Bubbles()
		return len(bubbles) == 1 && bubbles[0].Text == "greetings!"
	}, time.Second, time.Millisecond)

	close(ts.gate)
	time.Sleep(20 * time.Millisecond)

	// The stale rewrite must not land on the greeting now living at index 0.
	bubbles := c.trans.Bubbles()
	require.Len(t, bubbles, 1)
	assert.Equal(t, "greetings!", bubbles[0].Text)
}

func TestReplyIsTypeset(t *testing.T) {
	be := &fakeBackend{send: func(string) (string, error) {
		return `the area is $\pi r^2$ exactly`, nil
	}}
	c := newTestController(be)

	require.True(t, c.Submit("area of a circle?"))
	require.Eventually(t, func() bool {
		bubbles := c.trans.Bubbles()
		return len(bubbles) == 3 && strings.Contains(bubbles[2].Text, "π r²")
	}, time.Second, time.Millisecond)
}
