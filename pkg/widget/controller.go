// Package widget is the chat widget: a panel with a message list and an
// input field, opened over the home view. All UI state is owned by a single
// Controller with an explicit Mount/Unmount lifecycle; network calls run in
// goroutines and re-enter the UI loop through the controller's dispatch
// function.
package widget

import (
	"context"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/rivo/tview"

	"mathchat/pkg/backend"
	"mathchat/pkg/config"
	"mathchat/pkg/logger"
	"mathchat/pkg/render"
)

// Backend is the slice of the HTTP client the widget consumes.
type Backend interface {
	Send(ctx context.Context, text string) (string, error)
	History(ctx context.Context) ([]backend.Turn, error)
	Clear(ctx context.Context) error
}

// connectionErrText is the fixed user-visible failure bubble; the real error
// goes to the log, never to the panel.
const connectionErrText = "Connection error. Check that the backend is running and try again."

type state int

const (
	stateIdle state = iota
	stateSending
)

// Controller owns the widget. One instance per application run.
type Controller struct {
	cfg config.UIConfig
	be  Backend
	md  render.Markdown
	ts  render.Typesetter

	trans *Transcript

	// post marshals a closure onto the UI loop. Until Mount it executes
	// inline, which keeps the flow logic testable without a terminal.
	post func(func())

	mu        sync.Mutex
	state     state
	lastReply string

	// onReady fires once, after the first draw; the typesetting engine is
	// signaled ready from it.
	onReady func()

	// tview plumbing, nil until Mount.
	app    *tview.Application
	pages  *tview.Pages
	panel  *tview.Flex
	msgs   *tview.TextView
	input  *tview.InputField
	status *tview.TextView
	open   bool
	onceUp sync.Once
}

func NewController(cfg config.UIConfig, be Backend, md render.Markdown, ts render.Typesetter) *Controller {
	c := &Controller{
		cfg:   cfg,
		be:    be,
		md:    md,
		ts:    ts,
		trans: NewTranscript(cfg.Greeting),
	}
	c.post = func(fn func()) { fn() }
	return c
}

// Submit starts one send. Empty or whitespace-only input is rejected with no
// state change and no network call; so is a submission while another request
// is in flight. Returns whether the submission was accepted.
func (c *Controller) Submit(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	c.mu.Lock()
	if c.state == stateSending {
		c.mu.Unlock()
		logger.DebugCF("widget", "submission rejected: request already in flight", nil)
		return false
	}
	c.state = stateSending
	c.mu.Unlock()

	// Optimistic user bubble, then the transient typing indicator.
	c.trans.AppendUser(tview.Escape(text))
	c.trans.ShowTyping()
	c.setInputDisabled(true)
	c.setStatus("[yellow]sending…[-]")
	c.refresh()

	go func() {
		reply, err := c.be.Send(context.Background(), text)
		c.post(func() { c.finishSend(reply, err) })
	}()
	return true
}

func (c *Controller) finishSend(reply string, err error) {
	c.trans.HideTyping()

	switch {
	case err != nil:
		logger.ErrorCF("widget", "chat request failed", map[string]interface{}{"error": err.Error()})
		c.trans.AppendError(connectionErrText)
		c.setStatus("[red]disconnected[-]")
	case strings.TrimSpace(reply) == "":
		// Nothing to render; the typing indicator is already gone.
	default:
		rendered := c.renderReply(reply)
		if strings.TrimSpace(rendered) != "" {
			idx, gen := c.trans.AppendAssistant(rendered)
			c.setLastReply(reply)
			go c.typeset(gen, idx)
		}
	}
	if err == nil {
		c.setStatus("[green]connected[-]")
	}

	c.mu.Lock()
	c.state = stateIdle
	c.mu.Unlock()

	c.setInputDisabled(false)
	c.refresh()
}

// LoadHistory replays the persisted conversation. On failure or an empty
// history the default greeting stays untouched.
func (c *Controller) LoadHistory() {
	go func() {
		turns, err := c.be.History(context.Background())
		c.post(func() { c.applyHistory(turns, err) })
	}()
}

func (c *Controller) applyHistory(turns []backend.Turn, err error) {
	if err != nil {
		logger.WarnCF("widget", "history fetch failed; keeping greeting", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if len(turns) == 0 {
		return
	}

	c.trans.Clear()
	var (
		assistantIdx []int
		gen          uint64
	)
	for _, turn := range turns {
		if turn.Role == backend.RoleHuman {
			c.trans.AppendUser(tview.Escape(turn.Content))
			continue
		}
		rendered := c.renderReply(turn.Content)
		if strings.TrimSpace(rendered) == "" {
			continue
		}
		var idx int
		idx, gen = c.trans.AppendAssistant(rendered)
		assistantIdx = append(assistantIdx, idx)
	}

	// One typeset pass over the full set of assistant bubbles, not one per
	// message.
	if len(assistantIdx) > 0 {
		go c.typeset(gen, assistantIdx...)
	}
	c.refresh()
}

// ClearHistory wipes the backend conversation. The panel is reset to the
// single default greeting only when the backend confirms; on failure it is
// left exactly as it was.
func (c *Controller) ClearHistory() {
	go func() {
		err := c.be.Clear(context.Background())
		c.post(func() {
			if err != nil {
				logger.ErrorCF("widget", "clear history failed", map[string]interface{}{
					"error": err.Error(),
				})
				return
			}
			c.trans.Reset(c.cfg.Greeting)
			c.refresh()
		})
	}()
}

// CopyLastReply puts the raw text of the most recent assistant reply on the
// system clipboard.
func (c *Controller) CopyLastReply() {
	c.mu.Lock()
	reply := c.lastReply
	c.mu.Unlock()
	if reply == "" {
		return
	}
	if err := clipboard.WriteAll(reply); err != nil {
		logger.WarnCF("widget", "clipboard write failed", map[string]interface{}{"error": err.Error()})
	}
}

// renderReply runs raw assistant text through the math protection pipeline.
// A renderer failure degrades to the escaped raw text rather than dropping
// the reply.
func (c *Controller) renderReply(raw string) string {
	out, err := render.Math(raw, c.md)
	if err != nil {
		logger.WarnCF("widget", "markdown render failed", map[string]interface{}{"error": err.Error()})
		return tview.Escape(raw)
	}
	return tview.TranslateANSI(out)
}

// typeset rewrites the given assistant bubbles once the typesetting engine
// is ready. Runs off the UI loop; rewrites re-enter through post. gen pins
// the bubbles to the transcript generation they were appended under, so a
// clear or reset racing this goroutine drops the rewrites instead of letting
// them land on whatever occupies the indices afterwards.
func (c *Controller) typeset(gen uint64, indices ...int) {
	<-c.ts.Ready()
	for _, i := range indices {
		text, ok := c.trans.Assistant(i, gen)
		if !ok {
			continue
		}
		out := c.ts.Typeset(text)
		if out == text {
			continue
		}
		i := i
		c.post(func() {
			c.trans.RewriteAssistant(i, gen, out)
			c.refresh()
		})
	}
}

func (c *Controller) setLastReply(reply string) {
	c.mu.Lock()
	c.lastReply = reply
	c.mu.Unlock()
}

// refresh redraws the message list and scrolls to the bottom. It is called
// after every bubble insertion, unconditionally.
func (c *Controller) refresh() {
	if c.msgs == nil {
		return
	}
	c.msgs.SetText(c.trans.View())
	c.msgs.ScrollToEnd()
}

func (c *Controller) setInputDisabled(disabled bool) {
	if c.input == nil {
		return
	}
	c.input.SetDisabled(disabled)
}

func (c *Controller) setStatus(markup string) {
	if c.status == nil {
		return
	}
	c.status.SetText(markup)
}
