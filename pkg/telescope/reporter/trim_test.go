package reporter

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/telescope-hq/telescope/pkg/telescope/event"
)

func TestTrim_TruncatesLongStrings(t *testing.T) {
	e := event.Event{
		Type:    event.TypeError,
		Message: strings.Repeat("m", maxMessageLen+100),
		Stack:   strings.Repeat("s", maxStackLen+100),
	}

	out := Trim(e)

	if len(out.Message) != maxMessageLen+len(truncationMarker) {
		t.Errorf("message length = %d", len(out.Message))
	}
	if !strings.HasSuffix(out.Message, truncationMarker) {
		t.Error("truncated message should carry the marker")
	}
	if !strings.HasSuffix(out.Stack, truncationMarker) {
		t.Error("truncated stack should carry the marker")
	}
}

func TestTrim_TruncatesOnRuneBoundaries(t *testing.T) {
	// 3-byte runes; maxMessageLen is not a multiple of 3, so a naive
	// byte cut would split one.
	e := event.Event{Message: strings.Repeat("界", maxMessageLen)}

	out := Trim(e)

	if !utf8.ValidString(out.Message) {
		t.Error("truncation produced invalid UTF-8")
	}
	if !strings.HasSuffix(out.Message, truncationMarker) {
		t.Error("truncated message should carry the marker")
	}
	if len(out.Message) > maxMessageLen+len(truncationMarker) {
		t.Errorf("message length = %d", len(out.Message))
	}

	again := Trim(out)
	if again.Message != out.Message {
		t.Error("trimming a trimmed message should be a no-op")
	}
}

func TestTrim_ShortStringsUntouched(t *testing.T) {
	e := event.Event{Message: "boom", Stack: "at f (a.js:1:1)"}

	out := Trim(e)

	if out.Message != "boom" || out.Stack != "at f (a.js:1:1)" {
		t.Errorf("short strings should pass through: %+v", out)
	}
}

func TestTrim_CapsFrames(t *testing.T) {
	frames := make([]event.StackFrame, maxFrames+10)
	for i := range frames {
		frames[i] = event.StackFrame{Function: fmt.Sprintf("f%d", i)}
	}

	out := Trim(event.Event{Frames: frames})

	if len(out.Frames) != maxFrames {
		t.Errorf("frames = %d, want %d", len(out.Frames), maxFrames)
	}
	if out.Frames[0].Function != "f0" {
		t.Error("the leading frames should be kept")
	}
}

func TestTrim_KeepsMostRecentBreadcrumbs(t *testing.T) {
	crumbs := make([]event.Breadcrumb, maxBreadcrumbCount+5)
	for i := range crumbs {
		crumbs[i] = event.Breadcrumb{Message: fmt.Sprintf("crumb-%d", i)}
	}

	out := Trim(event.Event{Breadcrumbs: crumbs})

	if len(out.Breadcrumbs) != maxBreadcrumbCount {
		t.Fatalf("breadcrumbs = %d, want %d", len(out.Breadcrumbs), maxBreadcrumbCount)
	}
	if out.Breadcrumbs[0].Message != "crumb-5" {
		t.Errorf("oldest kept crumb = %q, want crumb-5", out.Breadcrumbs[0].Message)
	}
	if out.Breadcrumbs[maxBreadcrumbCount-1].Message != fmt.Sprintf("crumb-%d", maxBreadcrumbCount+4) {
		t.Error("the newest crumb should be last")
	}
}

func TestTrim_TruncatesCrumbMessages(t *testing.T) {
	out := Trim(event.Event{Breadcrumbs: []event.Breadcrumb{
		{Message: strings.Repeat("c", maxCrumbMessageLen+1)},
	}})

	if !strings.HasSuffix(out.Breadcrumbs[0].Message, truncationMarker) {
		t.Error("long crumb message should be truncated")
	}
}

func TestTrim_CapsMetrics(t *testing.T) {
	metrics := make(map[string]float64, maxMetricCount+10)
	for i := 0; i < maxMetricCount+10; i++ {
		metrics[fmt.Sprintf("m%d", i)] = float64(i)
	}

	out := Trim(event.Event{Metrics: metrics})

	if len(out.Metrics) != maxMetricCount {
		t.Errorf("metrics = %d, want %d", len(out.Metrics), maxMetricCount)
	}
}

func TestTrim_DoesNotMutateInput(t *testing.T) {
	crumbs := []event.Breadcrumb{{Message: strings.Repeat("c", maxCrumbMessageLen+1)}}
	e := event.Event{Breadcrumbs: crumbs}

	Trim(e)

	if len(crumbs[0].Message) != maxCrumbMessageLen+1 {
		t.Error("input breadcrumbs were mutated")
	}
}

func TestTrim_Idempotent(t *testing.T) {
	crumbs := make([]event.Breadcrumb, maxBreadcrumbCount+5)
	for i := range crumbs {
		crumbs[i] = event.Breadcrumb{Message: fmt.Sprintf("crumb-%d", i)}
	}
	e := event.Event{
		Message:     strings.Repeat("m", maxMessageLen+100),
		Breadcrumbs: crumbs,
	}

	once := Trim(e)
	twice := Trim(once)

	if !reflect.DeepEqual(once, twice) {
		t.Error("trimming an already trimmed event should be a no-op")
	}
}
