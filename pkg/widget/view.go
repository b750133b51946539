package widget

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// SetReadyFunc registers the hook fired once after the first draw. The
// typesetting engine must not be used before the UI loop is running, so this
// is where its readiness gets signaled.
func (c *Controller) SetReadyFunc(fn func()) {
	c.onReady = fn
}

// Mount builds the tview tree and wires the event bindings. After Mount all
// background work re-enters the UI loop through QueueUpdateDraw.
func (c *Controller) Mount() {
	c.app = tview.NewApplication()

	c.msgs = tview.NewTextView()
	c.msgs.SetDynamicColors(true)
	c.msgs.SetWordWrap(true)
	c.msgs.SetScrollable(true)
	c.msgs.SetBorder(true)
	c.msgs.SetTitle(" " + c.cfg.Title + " ")

	c.input = tview.NewInputField()
	c.input.SetLabel("> ")
	c.input.SetPlaceholder("Ask a question…")
	c.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		if c.Submit(c.input.GetText()) {
			c.input.SetText("")
		}
	})

	hint := tview.NewTextView()
	hint.SetDynamicColors(true)
	hint.SetText("[::d]Enter send · Esc close · Ctrl-X clear history · Ctrl-Y copy reply[::-]")

	c.status = tview.NewTextView()
	c.status.SetDynamicColors(true)
	c.status.SetTextAlign(tview.AlignRight)
	c.status.SetText("[green]connected[-]")

	bar := tview.NewFlex().
		AddItem(hint, 0, 1, false).
		AddItem(c.status, 14, 0, false)

	c.panel = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(c.msgs, 0, 1, false).
		AddItem(c.input, 1, 0, true).
		AddItem(bar, 1, 0, false)

	home := tview.NewTextView()
	home.SetDynamicColors(true)
	home.SetTextAlign(tview.AlignCenter)
	home.SetText("\n\n[::b]" + c.cfg.Title + "[::-]\n\nPress Enter to open the chat, Ctrl-C to quit.")

	c.pages = tview.NewPages().
		AddPage("home", home, true, true).
		AddPage("chat", center(c.panel), true, false)

	c.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		switch {
		case !c.open && ev.Key() == tcell.KeyEnter:
			c.OpenPanel()
			return nil
		case c.open && ev.Key() == tcell.KeyEscape:
			c.ClosePanel()
			return nil
		case c.open && ev.Key() == tcell.KeyCtrlX:
			c.ClearHistory()
			return nil
		case c.open && ev.Key() == tcell.KeyCtrlY:
			c.CopyLastReply()
			return nil
		}
		return ev
	})

	// A press outside the open panel closes it.
	c.app.SetMouseCapture(func(ev *tcell.EventMouse, action tview.MouseAction) (*tcell.EventMouse, tview.MouseAction) {
		if c.open && action == tview.MouseLeftDown && !c.panel.InRect(ev.Position()) {
			c.ClosePanel()
			return nil, 0
		}
		return ev, action
	})

	c.app.SetAfterDrawFunc(func(tcell.Screen) {
		c.onceUp.Do(func() {
			if c.onReady != nil {
				go c.onReady()
			}
		})
	})

	c.post = func(fn func()) { c.app.QueueUpdateDraw(fn) }
	c.refresh()
}

// Run mounts the widget if needed, replays the persisted history and blocks
// inside the UI loop until quit.
func (c *Controller) Run() error {
	if c.app == nil {
		c.Mount()
	}
	c.LoadHistory()
	return c.app.SetRoot(c.pages, true).EnableMouse(c.cfg.Mouse).Run()
}

// Unmount stops the UI loop and releases the tview tree. Background work
// posted afterwards executes inline against the detached transcript, which
// is harmless.
func (c *Controller) Unmount() {
	if c.app == nil {
		return
	}
	c.app.Stop()
	c.post = func(fn func()) { fn() }
	c.app = nil
	c.pages = nil
	c.panel = nil
	c.msgs = nil
	c.input = nil
	c.status = nil
	c.open = false
}

// OpenPanel shows the chat panel and focuses the input.
func (c *Controller) OpenPanel() {
	if c.pages == nil || c.open {
		return
	}
	c.pages.ShowPage("chat")
	c.app.SetFocus(c.input)
	c.open = true
}

// ClosePanel hides the chat panel; the conversation stays as it was.
func (c *Controller) ClosePanel() {
	if c.pages == nil || !c.open {
		return
	}
	c.pages.HidePage("chat")
	c.open = false
}

// center floats p over the page behind it, leaving a margin on every side.
func center(p tview.Primitive) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, 0, 8, true).
			AddItem(nil, 0, 1, false), 0, 8, true).
		AddItem(nil, 0, 1, false)
}
