// Package instrument provides installable observers that wrap platform
// entry points and produce telemetry without disturbing the host
// application.
package instrument

import (
	"github.com/telescope-hq/telescope/pkg/telescope/event"
)

// Sink receives the observations adapters make. The SDK client
// implements it.
type Sink interface {
	AddBreadcrumb(b event.Breadcrumb)
	CaptureEvent(e event.Event)
}

// Adapter wraps exactly one platform entry point. Install stores the
// previous value of that entry point and chains to it on every
// interception, so third-party consumers of the same hook keep working;
// Uninstall restores the stored value exactly. Installing twice without
// uninstalling is a no-op.
type Adapter interface {
	Name() string
	Install(sink Sink) error
	Uninstall() error
}

// observe runs an observation and swallows any panic: an adapter must
// never break the host application's control flow from inside an
// intercepted path.
func observe(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}
