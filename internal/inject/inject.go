// Package inject delivers transcripts: typed or pasted into the focused
// window using robotgo, or appended to a notebook file.
package inject

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/go-vgo/robotgo"
)

// Sink receives each delivered transcript. Whitespace-only text is ignored.
type Sink interface {
	Deliver(text string) error
}

// Typer injects text into the active application.
type Typer struct {
	method  string // "type" or "paste"
	enabled bool

	typeFn func(string)
	tapFn  func(key string, mods ...interface{}) error
	readFn func() (string, error)
	copyFn func(string) error
}

// NewTyper creates a Typer with the given method. method must be "type"
// (keystroke simulation) or "paste" (clipboard). A disabled Typer accepts
// text and does nothing.
func NewTyper(method string, enabled bool) *Typer {
	return &Typer{
		method:  method,
		enabled: enabled,
		typeFn:  func(s string) { robotgo.Type(s) },
		tapFn:   robotgo.KeyTap,
		readFn:  robotgo.ReadAll,
		copyFn:  robotgo.WriteAll,
	}
}

// Deliver sends text to the active application using the configured method.
func (t *Typer) Deliver(text string) error {
	if !t.enabled || strings.TrimSpace(text) == "" {
		return nil
	}

	switch t.method {
	case "paste":
		return t.paste(text + " ")
	default: // "type"
		return t.typeText(text)
	}
}

// typeText simulates individual keystrokes followed by a space so the next
// transcript does not run into this one.
func (t *Typer) typeText(text string) error {
	t.typeFn(text)
	if err := t.tapFn("space"); err != nil {
		return fmt.Errorf("inject: key tap space: %w", err)
	}
	return nil
}

// paste copies text to the clipboard and pastes it with the platform
// shortcut. The previous clipboard is restored on a best-effort basis.
func (t *Typer) paste(text string) error {
	prev, _ := t.readFn()

	if err := t.copyFn(text); err != nil {
		return fmt.Errorf("inject: write to clipboard: %w", err)
	}

	mod := pasteModifier(runtime.GOOS)
	if err := t.tapFn("v", mod); err != nil {
		return fmt.Errorf("inject: key tap %s+v: %w", mod, err)
	}

	_ = t.copyFn(prev)

	return nil
}

func pasteModifier(goos string) string {
	if goos == "darwin" {
		return "cmd"
	}
	return "ctrl"
}
