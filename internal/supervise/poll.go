package supervise

import "time"

// TrySend attempts to deliver msg to the worker's control channel within
// timeout. A full channel (the worker isn't draining its control queue)
// is treated as a liveness failure per spec.md §5's backpressure policy
// ("a full channel on Poll is treated as a liveness failure").
func (h *Handle) TrySend(msg Control, timeout time.Duration) bool {
	select {
	case h.ctrl <- msg:
		return true
	case <-time.After(timeout):
		return false
	}
}

// HasExited reports whether the worker's Run method has already
// returned, and if so, its Exit status. Non-blocking.
func (h *Handle) HasExited() (Exit, bool) {
	select {
	case exit := <-h.done:
		// Put it back so a later read (e.g. during shutdown join) still sees it.
		h.done <- exit
		return exit, true
	default:
		return 0, false
	}
}
