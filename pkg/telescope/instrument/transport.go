package instrument

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/telescope-hq/telescope/pkg/telescope/event"
)

// TransportAdapter wraps an *http.Client's RoundTripper. Every outgoing
// request becomes a breadcrumb; transport failures and 5xx responses
// become resource error events. The previous RoundTripper is always
// chained, and restored exactly on Uninstall.
type TransportAdapter struct {
	client    *http.Client
	prev      http.RoundTripper
	installed bool
}

// NewTransportAdapter observes the given client. A nil client observes
// http.DefaultClient.
func NewTransportAdapter(client *http.Client) *TransportAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &TransportAdapter{client: client}
}

func (a *TransportAdapter) Name() string { return "http_transport" }

func (a *TransportAdapter) Install(sink Sink) error {
	if a.installed {
		return nil
	}
	prev := a.client.Transport
	if prev == nil {
		prev = http.DefaultTransport
	}
	a.prev = a.client.Transport // restore exactly, including nil
	a.client.Transport = &observingTransport{next: prev, sink: sink}
	a.installed = true
	return nil
}

func (a *TransportAdapter) Uninstall() error {
	if !a.installed {
		return nil
	}
	a.client.Transport = a.prev
	a.prev = nil
	a.installed = false
	return nil
}

type observingTransport struct {
	next http.RoundTripper
	sink Sink
}

type requestCrumb struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	Status int    `json:"status,omitempty"`
	Ms     int64  `json:"ms"`
}

func (t *observingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(start)

	observe(func() {
		crumb := requestCrumb{
			Method: req.Method,
			URL:    req.URL.String(),
			Ms:     elapsed.Milliseconds(),
		}
		if resp != nil {
			crumb.Status = resp.StatusCode
		}
		data, _ := json.Marshal(crumb)

		t.sink.AddBreadcrumb(event.Breadcrumb{
			Type:      "http",
			Category:  "request",
			Message:   fmt.Sprintf("%s %s", req.Method, req.URL.String()),
			Data:      data,
			Timestamp: time.Now(),
		})

		if err != nil {
			t.sink.CaptureEvent(event.Event{
				Type:      event.TypeResource,
				Timestamp: time.Now(),
				URL:       req.URL.String(),
				ErrorType: "NetworkError",
				Message:   err.Error(),
			})
		} else if resp.StatusCode >= 500 {
			t.sink.CaptureEvent(event.Event{
				Type:      event.TypeResource,
				Timestamp: time.Now(),
				URL:       req.URL.String(),
				ErrorType: "HTTPError",
				Message:   fmt.Sprintf("%s %s returned %d", req.Method, req.URL.Path, resp.StatusCode),
			})
		}
	})

	return resp, err
}
