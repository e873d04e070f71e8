package telescope

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/telescope-hq/telescope/pkg/telescope/event"
)

// Matcher matches a string either by substring or by regular expression,
// for the ignore/allow option lists.
type Matcher struct {
	substr  string
	pattern *regexp.Regexp
}

// MatchString builds a substring matcher.
func MatchString(substr string) Matcher {
	return Matcher{substr: substr}
}

// MatchPattern builds a regular-expression matcher.
func MatchPattern(re *regexp.Regexp) Matcher {
	return Matcher{pattern: re}
}

// Match reports whether s is matched.
func (m Matcher) Match(s string) bool {
	if m.pattern != nil {
		return m.pattern.MatchString(s)
	}
	return m.substr != "" && strings.Contains(s, m.substr)
}

func anyMatch(matchers []Matcher, s string) bool {
	for _, m := range matchers {
		if m.Match(s) {
			return true
		}
	}
	return false
}

// Options enumerates every recognized SDK option. Zero values take the
// documented defaults; validation happens once at construction.
type Options struct {
	// DSN identifies the project. Required.
	DSN string
	// ReportURL is the ingestion endpoint. Required.
	ReportURL string

	// Sampling rates in [0, 1]. A zero value means the default of 1.0
	// (sample everything); use a BeforeSend veto to drop everything.
	SampleRate            float64
	ErrorSampleRate       float64
	PerformanceSampleRate float64

	// MaxBreadcrumbs bounds the in-memory trail. Default 20.
	MaxBreadcrumbs int
	// BatchSize triggers an immediate flush. Default 10.
	BatchSize int
	// ReportInterval is the background flush period. Default 5s.
	ReportInterval time.Duration
	// FlushThrottle is the minimum interval between flushes. Default 1s.
	FlushThrottle time.Duration

	// IgnoreURLs drops events whose URL matches; AllowURLs, when set,
	// drops events whose URL does not match.
	IgnoreURLs []Matcher
	AllowURLs  []Matcher
	// IgnoreErrors drops error events whose message or type matches.
	IgnoreErrors []Matcher

	// BeforeSend may veto (return nil) or rewrite an event before it
	// reaches the delivery pipeline.
	BeforeSend func(e event.Event) *event.Event

	// OfflinePath is the SQLite file for batches that failed to send;
	// empty keeps the offline queue in memory.
	OfflinePath string
	// MaxOfflineItems bounds the offline FIFO. Default 100.
	MaxOfflineItems int

	// DisableWorker forces the delivery pipeline inline.
	DisableWorker bool

	// Environment and Release are stamped on every event.
	Environment string
	Release     string

	Logger *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.SampleRate == 0 {
		o.SampleRate = 1
	}
	if o.ErrorSampleRate == 0 {
		o.ErrorSampleRate = o.SampleRate
	}
	if o.PerformanceSampleRate == 0 {
		o.PerformanceSampleRate = o.SampleRate
	}
	if o.MaxBreadcrumbs <= 0 {
		o.MaxBreadcrumbs = 20
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.ReportInterval <= 0 {
		o.ReportInterval = 5 * time.Second
	}
	if o.FlushThrottle <= 0 {
		o.FlushThrottle = time.Second
	}
	if o.MaxOfflineItems <= 0 {
		o.MaxOfflineItems = 100
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

func (o *Options) validate() error {
	if o.DSN == "" {
		return fmt.Errorf("telescope: DSN is required")
	}
	if o.ReportURL == "" {
		return fmt.Errorf("telescope: ReportURL is required")
	}
	for name, rate := range map[string]float64{
		"SampleRate":            o.SampleRate,
		"ErrorSampleRate":       o.ErrorSampleRate,
		"PerformanceSampleRate": o.PerformanceSampleRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("telescope: %s must be in [0, 1], got %v", name, rate)
		}
	}
	return nil
}
