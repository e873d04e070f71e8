package instrument

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/telescope-hq/telescope/pkg/telescope/event"
)

// recordingSink collects observations for assertions.
type recordingSink struct {
	mu     sync.Mutex
	crumbs []event.Breadcrumb
	events []event.Event
}

func (s *recordingSink) AddBreadcrumb(b event.Breadcrumb) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crumbs = append(s.crumbs, b)
}

func (s *recordingSink) CaptureEvent(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) crumbCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.crumbs)
}

// countingTripper counts how many requests reach the original transport.
type countingTripper struct {
	calls int
	base  http.RoundTripper
}

func (c *countingTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls++
	return c.base.RoundTrip(req)
}

func TestTransportAdapter_ObservesAndChains(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	prev := &countingTripper{base: http.DefaultTransport}
	client := &http.Client{Transport: prev}
	sink := &recordingSink{}

	a := NewTransportAdapter(client)
	if err := a.Install(sink); err != nil {
		t.Fatalf("Install: %v", err)
	}
	defer a.Uninstall()

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if prev.calls != 1 {
		t.Error("the previous transport should still see the request")
	}
	if sink.crumbCount() != 1 {
		t.Fatalf("expected 1 breadcrumb, got %d", sink.crumbCount())
	}
	crumb := sink.crumbs[0]
	if crumb.Type != "http" || !strings.Contains(crumb.Message, server.URL) {
		t.Errorf("unexpected crumb: %+v", crumb)
	}
	if len(sink.events) != 0 {
		t.Error("a 200 response should not produce an error event")
	}
}

func TestTransportAdapter_ServerErrorsBecomeEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := &http.Client{}
	sink := &recordingSink{}
	a := NewTransportAdapter(client)
	a.Install(sink)
	defer a.Uninstall()

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if len(sink.events) != 1 {
		t.Fatalf("expected 1 resource event, got %d", len(sink.events))
	}
	e := sink.events[0]
	if e.Type != event.TypeResource || e.ErrorType != "HTTPError" {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestTransportAdapter_NetworkFailuresBecomeEvents(t *testing.T) {
	client := &http.Client{}
	sink := &recordingSink{}
	a := NewTransportAdapter(client)
	a.Install(sink)
	defer a.Uninstall()

	// Closed port: the dial fails
	_, err := client.Get("http://127.0.0.1:1")
	if err == nil {
		t.Fatal("expected a network error")
	}

	if len(sink.events) != 1 || sink.events[0].ErrorType != "NetworkError" {
		t.Errorf("expected a NetworkError event, got %+v", sink.events)
	}
}

func TestTransportAdapter_UninstallRestoresExactly(t *testing.T) {
	prev := &countingTripper{base: http.DefaultTransport}
	client := &http.Client{Transport: prev}

	a := NewTransportAdapter(client)
	a.Install(&recordingSink{})
	if client.Transport == http.RoundTripper(prev) {
		t.Fatal("install should replace the transport")
	}

	if err := a.Uninstall(); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if client.Transport != http.RoundTripper(prev) {
		t.Error("uninstall should restore the previous transport")
	}
}

func TestTransportAdapter_RestoresNilTransport(t *testing.T) {
	client := &http.Client{}

	a := NewTransportAdapter(client)
	a.Install(&recordingSink{})
	a.Uninstall()

	if client.Transport != nil {
		t.Error("a nil transport should be restored as nil")
	}
}

func TestTransportAdapter_InstallIsIdempotent(t *testing.T) {
	client := &http.Client{}
	a := NewTransportAdapter(client)

	a.Install(&recordingSink{})
	installed := client.Transport
	a.Install(&recordingSink{})

	if client.Transport != installed {
		t.Error("a second install should be a no-op")
	}

	a.Uninstall()
	if client.Transport != nil {
		t.Error("one uninstall should restore the original transport")
	}
}
