package ingest

import (
	"testing"

	"github.com/telescope-hq/telescope/internal/domain"
)

func TestNormalizeMessage_ReplacesVolatileTokens(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"numbers", "User 123 not found", "User <num> not found"},
		{"uuid", "session 550e8400-e29b-41d4-a716-446655440000 expired", "session <uuid> expired"},
		{"hex", "object deadbeefcafe1234 is stale", "object <hex> is stale"},
		{"url", "failed to fetch https://api.example.com/v2/users?id=7", "failed to fetch <url>"},
		{"quoted", `cannot read property 'foo' of undefined`, "cannot read property <str> of undefined"},
		{"no volatile parts", "connection refused", "connection refused"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeMessage(tc.in); got != tc.want {
				t.Errorf("NormalizeMessage(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	ev := &domain.RawEvent{
		Type:      domain.EventError,
		ErrorType: "TypeError",
		Message:   "cannot read property 'x' of undefined",
		Frames: []domain.StackFrame{
			{Function: "render", File: "app.min.js", Line: 1, Column: 100},
		},
	}

	a := Fingerprint(ev)
	b := Fingerprint(ev)
	if a != b {
		t.Errorf("same event produced different fingerprints: %q vs %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("fingerprint length = %d, want 16", len(a))
	}
}

func TestFingerprint_CollapsesVolatileMessages(t *testing.T) {
	base := domain.RawEvent{
		Type:      domain.EventError,
		ErrorType: "NotFoundError",
		Frames: []domain.StackFrame{
			{Function: "loadUser", File: "app.min.js", Line: 3, Column: 20},
		},
	}

	a := base
	a.Message = "User 123 not found"
	b := base
	b.Message = "User 9876 not found"

	if Fingerprint(&a) != Fingerprint(&b) {
		t.Error("messages differing only by an id should share a fingerprint")
	}
}

func TestFingerprint_IgnoresLineAndColumn(t *testing.T) {
	a := &domain.RawEvent{
		Type:      domain.EventError,
		ErrorType: "TypeError",
		Message:   "boom",
		Frames: []domain.StackFrame{
			{Function: "render", File: "app.min.js", Line: 1, Column: 100},
		},
	}
	b := &domain.RawEvent{
		Type:      domain.EventError,
		ErrorType: "TypeError",
		Message:   "boom",
		Frames: []domain.StackFrame{
			// Same function and file, different position (recompiled bundle)
			{Function: "render", File: "app.min.js", Line: 17, Column: 4},
		},
	}

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("frame positions should not change the fingerprint")
	}
}

func TestFingerprint_OnlyTopFramesCount(t *testing.T) {
	frames := make([]domain.StackFrame, 0, topFrames+2)
	for i := 0; i < topFrames; i++ {
		frames = append(frames, domain.StackFrame{Function: "f", File: "a.js"})
	}

	a := &domain.RawEvent{Type: domain.EventError, ErrorType: "E", Message: "m",
		Frames: append(append([]domain.StackFrame{}, frames...), domain.StackFrame{Function: "deep1", File: "x.js"})}
	b := &domain.RawEvent{Type: domain.EventError, ErrorType: "E", Message: "m",
		Frames: append(append([]domain.StackFrame{}, frames...), domain.StackFrame{Function: "deep2", File: "y.js"})}

	if Fingerprint(a) != Fingerprint(b) {
		t.Errorf("frames beyond the top %d should not change the fingerprint", topFrames)
	}
}

func TestFingerprint_DifferentErrorTypesDiffer(t *testing.T) {
	a := &domain.RawEvent{Type: domain.EventError, ErrorType: "TypeError", Message: "boom"}
	b := &domain.RawEvent{Type: domain.EventError, ErrorType: "RangeError", Message: "boom"}

	if Fingerprint(a) == Fingerprint(b) {
		t.Error("different error types should not share a fingerprint")
	}
}

func TestFingerprint_TextualStack(t *testing.T) {
	a := &domain.RawEvent{
		Type:      domain.EventError,
		ErrorType: "TypeError",
		Message:   "boom",
		Stack: `    at render (https://cdn.example.com/bundle.js:1:1234)
    at update (https://cdn.example.com/bundle.js:1:5678)`,
	}
	b := &domain.RawEvent{
		Type:      domain.EventError,
		ErrorType: "TypeError",
		Message:   "boom",
		Stack: `    at render (https://cdn.example.com/bundle.js:7:99)
    at update (https://cdn.example.com/bundle.js:8:11)`,
	}

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("textual stacks differing only by position should share a fingerprint")
	}
}

func TestFingerprint_NoStackFallsBackToURL(t *testing.T) {
	a := &domain.RawEvent{Type: domain.EventError, ErrorType: "E", Message: "boom", URL: "https://app.example.com/checkout"}
	b := &domain.RawEvent{Type: domain.EventError, ErrorType: "E", Message: "boom", URL: "https://app.example.com/settings"}

	if Fingerprint(a) == Fingerprint(b) {
		t.Error("without a stack, different page URLs should produce different fingerprints")
	}
}

func TestFrameIdentity(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"    at render (https://cdn.example.com/bundle.js:1:1234)", "render@https://cdn.example.com/bundle.js"},
		{"    at https://cdn.example.com/bundle.js:1:1234", "<anonymous>@https://cdn.example.com/bundle.js"},
		{"not a frame line", "not a frame line"},
	}

	for _, tc := range cases {
		if got := frameIdentity(tc.in); got != tc.want {
			t.Errorf("frameIdentity(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
