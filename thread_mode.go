package xevent

import (
	"fmt"
	"strings"
)

// ThreadMode declares where and when a handler is invoked relative to the goroutine that posts.
type ThreadMode int

const (
	// Posting invokes the handler synchronously on the posting goroutine. It is the default and the
	// only mode whose delivery can be canceled.
	Posting ThreadMode = iota
	// Main invokes the handler on the main goroutine. When the poster already runs there the
	// handler is called inline.
	Main
	// MainOrdered always queues onto the main goroutine, even when posted from it.
	MainOrdered
	// Background invokes the handler on a single background worker, one delivery at a time.
	// Posts from outside the main goroutine may run inline when the worker is idle.
	Background
	// Async hands every delivery to the executor pool. No ordering is guaranteed.
	Async
)

func (m ThreadMode) String() string {
	switch m {
	case Posting:
		return "posting"
	case Main:
		return "main"
	case MainOrdered:
		return "main_ordered"
	case Background:
		return "background"
	case Async:
		return "async"
	default:
		return fmt.Sprintf("thread_mode(%d)", int(m))
	}
}

// ParseThreadMode maps a mode name (as printed by String, case-insensitive) back to a ThreadMode.
func ParseThreadMode(s string) (ThreadMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "posting":
		return Posting, nil
	case "main":
		return Main, nil
	case "main_ordered", "mainordered":
		return MainOrdered, nil
	case "background":
		return Background, nil
	case "async":
		return Async, nil
	}
	return Posting, fmt.Errorf("xevent: unknown thread mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m ThreadMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ThreadMode) UnmarshalText(b []byte) error {
	v, err := ParseThreadMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m ThreadMode) valid() bool { return m >= Posting && m <= Async }
