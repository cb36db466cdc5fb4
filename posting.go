package xevent

import "sync"

// postingState tracks one call chain's in-progress post. The outermost Post creates it and
// hands it to inline handlers through their context; nested posts only enqueue.
type postingState struct {
	mu       sync.Mutex
	queue    []any
	posting  bool
	main     bool
	canceled bool
	event    any
	arg      any
	sub      *subscription
}

// push queues event and reports whether the caller must drain the queue.
func (s *postingState) push(event any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, event)
	if s.posting {
		return false
	}
	s.posting = true
	return true
}

// pop dequeues the next event; on an empty queue it ends the posting phase.
func (s *postingState) pop() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		s.posting = false
		s.queue = nil
		return nil, false
	}
	e := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return e, true
}

// abort discards queued events and ends the posting phase.
func (s *postingState) abort() {
	s.mu.Lock()
	s.queue = nil
	s.posting = false
	s.canceled = false
	s.event = nil
	s.arg = nil
	s.sub = nil
	s.mu.Unlock()
}

func (s *postingState) setMain(main bool) {
	s.mu.Lock()
	s.main = main
	s.mu.Unlock()
}

func (s *postingState) isMain() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.main
}

// begin records the delivery in progress. arg is the value the handler receives, which
// differs from event when the handler is bound to an embedded ancestor.
func (s *postingState) begin(event, arg any, sub *subscription) {
	s.mu.Lock()
	s.event = event
	s.arg = arg
	s.sub = sub
	s.canceled = false
	s.mu.Unlock()
}

// end clears the current delivery and reports whether it was canceled.
func (s *postingState) end() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	canceled := s.canceled
	s.event = nil
	s.arg = nil
	s.sub = nil
	s.canceled = false
	return canceled
}

func (s *postingState) cancel(event any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !s.posting:
		return &IllegalStateError{Op: "cancel event delivery", Reason: "only allowed from a handler on the posting call chain"}
	case s.sub == nil || !(sameEvent(s.event, event) || sameEvent(s.arg, event)):
		return &IllegalStateError{Op: "cancel event delivery", Reason: "only the event currently being delivered may be canceled"}
	case s.sub.method.Mode != Posting:
		return &IllegalStateError{Op: "cancel event delivery", Reason: "only posting mode handlers may cancel delivery"}
	}
	s.canceled = true
	return nil
}
