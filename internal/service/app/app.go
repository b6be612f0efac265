package app

import (
	"context"
	"dtn_chat/internal/service/bridge"
	"dtn_chat/internal/utils/log"
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const inputQueueSize = 64

type (
	// App is a terminal chat window usable as a bridge.LiveChannel.
	App struct {
		app     *tview.Application
		chatbox *tview.TextView
		input   *tview.InputField

		localName string
		peerName  string

		lines     chan string
		inbound   chan string
		done      chan struct{}
		closeOnce sync.Once
	}
)

func NewApp(localName, peerName string) *App {
	return &App{
		app:       tview.NewApplication(),
		localName: localName,
		peerName:  peerName,
		lines:     make(chan string, inputQueueSize),
		inbound:   make(chan string, inputQueueSize),
		done:      make(chan struct{}),
	}
}

// Run draws the UI and blocks until the user quits or Close is called.
func (c *App) Run() error {
	c.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	c.chatbox.SetBorder(true).SetTitle(fmt.Sprintf(" Chat with %s ", c.peerName))

	c.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	c.input.SetBorder(true).SetTitle(" New Message ")

	c.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := c.input.GetText()
		if text == "" {
			return
		}

		select {
		case c.lines <- text:
			fmt.Fprintf(c.chatbox, "[yellow]%s:[-] %s\n", tview.Escape(c.localName), tview.Escape(text))
			c.input.SetText("")
			c.chatbox.ScrollToEnd()
		default:
			fmt.Fprintf(c.chatbox, "[red]outgoing queue full, message not sent[-]\n")
		}
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.chatbox, 0, 1, false).
		AddItem(c.input, 3, 0, true)

	go c.drawInbound()
	err := c.app.SetRoot(layout, true).SetFocus(c.input).Run()
	c.Close()
	return err
}

// Send queues an inbound line for the chat window.
func (c *App) Send(ctx context.Context, text string) error {
	select {
	case <-c.done:
		return bridge.ErrLiveClosed
	default:
	}

	select {
	case c.inbound <- text:
		return nil
	case <-c.done:
		return bridge.ErrLiveClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *App) drawInbound() {
	for {
		select {
		case text := <-c.inbound:
			c.app.QueueUpdateDraw(func() {
				fmt.Fprintf(c.chatbox, "[green]%s[-]\n", tview.Escape(text))
				c.chatbox.ScrollToEnd()
			})
		case <-c.done:
			return
		}
	}
}

// Receive returns the next line the user typed.
func (c *App) Receive(ctx context.Context) (string, error) {
	select {
	case text := <-c.lines:
		return text, nil
	case <-c.done:
		return "", bridge.ErrLiveClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *App) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.app.Stop()
		log.Debug("terminal closed", zap.String("peer", c.peerName))
	})
	return nil
}
