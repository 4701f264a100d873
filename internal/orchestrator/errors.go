package orchestrator

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors map 1:1 to spec.md §7's error taxonomy. The FAIL
// transition inspects which of these an internal stage error wraps to pick
// the failure event's title.
var (
	ErrPlanningEmpty = errors.New("orchestrator: planning produced no queries")
	ErrNoResults     = errors.New("orchestrator: no web search results found")
	ErrTimeout       = errors.New("orchestrator: web search timed out")
	ErrInternal      = errors.New("orchestrator: web search failed")
)

// failureTitle resolves a FAIL-stage error to the human-readable title
// spec.md §4.8/§7 specifies for each taxonomy kind.
func failureTitle(err error) string {
	switch {
	case errors.Is(err, ErrPlanningEmpty):
		return "I couldn't understand the question."
	case errors.Is(err, ErrNoResults):
		return "No web search results found."
	case errors.Is(err, ErrTimeout):
		return "Web search timeout"
	default:
		return "Web search failed"
	}
}

// classify wraps a sub-operation error as ErrTimeout when it bubbles up
// from an exceeded deadline, and as ErrInternal otherwise, per spec.md
// §7's timeout/internal_error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrInternal, err)
}
