package reporter

import (
	"strings"
	"unicode/utf8"

	"github.com/telescope-hq/telescope/pkg/telescope/event"
)

// Size bounds applied to outgoing events. Long strings are truncated with
// a marker; large collections are capped to bounded prefixes.
const (
	maxMessageLen      = 2048
	maxStackLen        = 8192
	maxFrames          = 50
	maxBreadcrumbCount = 20
	maxCrumbMessageLen = 512
	maxMetricCount     = 64

	truncationMarker = "…[truncated]"
)

// Trim returns a size-bounded copy of the event. It is a pure transform:
// the input is never mutated, and trimming an already trimmed event is a
// no-op.
func Trim(e event.Event) event.Event {
	e.Message = truncate(e.Message, maxMessageLen)
	e.Stack = truncate(e.Stack, maxStackLen)

	if len(e.Frames) > maxFrames {
		e.Frames = append([]event.StackFrame(nil), e.Frames[:maxFrames]...)
	}

	if len(e.Breadcrumbs) > 0 {
		n := len(e.Breadcrumbs)
		if n > maxBreadcrumbCount {
			// Keep the most recent crumbs; the oldest are the least useful.
			e.Breadcrumbs = e.Breadcrumbs[n-maxBreadcrumbCount:]
		}
		crumbs := make([]event.Breadcrumb, len(e.Breadcrumbs))
		for i, c := range e.Breadcrumbs {
			c.Message = truncate(c.Message, maxCrumbMessageLen)
			crumbs[i] = c
		}
		e.Breadcrumbs = crumbs
	}

	if len(e.Metrics) > maxMetricCount {
		capped := make(map[string]float64, maxMetricCount)
		for k, v := range e.Metrics {
			capped[k] = v
			if len(capped) == maxMetricCount {
				break
			}
		}
		e.Metrics = capped
	}

	return e
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Already truncated on an earlier pass.
	if len(s) <= max+len(truncationMarker) && strings.HasSuffix(s, truncationMarker) {
		return s
	}
	// Never cut through a multi-byte rune.
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}
