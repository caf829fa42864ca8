package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TimeToStartResponding is the timing label recorded when a response is
// about to be written.
const TimeToStartResponding = "time to start responding"

var metricNameRE = regexp.MustCompile("^[!#$%&'*+\\-.^_`|~0-9a-z]+$")

// TimingEntry is one labelled duration.
type TimingEntry struct {
	// Name is the Server-Timing metric name. Empty names are assigned
	// from the entry position.
	Name     string
	Label    string
	Duration time.Duration
}

// Timing is an ordered set of labelled durations shared by the hooks of
// one request. It is safe for concurrent use.
type Timing struct {
	mu      sync.Mutex
	entries []TimingEntry
	index   map[string]int
}

// NewTiming returns an empty Timing.
func NewTiming() *Timing {
	return &Timing{index: make(map[string]int)}
}

// Add records d under label. Re-adding a label replaces its duration and
// keeps its position.
func (t *Timing) Add(label string, d time.Duration) {
	t.AddNamed("", label, d)
}

// AddNamed records d under label with an explicit metric name.
func (t *Timing) AddNamed(name, label string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index == nil {
		t.index = make(map[string]int)
	}
	if i, ok := t.index[label]; ok {
		t.entries[i].Duration = d
		if name != "" {
			t.entries[i].Name = name
		}
		return
	}
	t.index[label] = len(t.entries)
	t.entries = append(t.entries, TimingEntry{Name: name, Label: label, Duration: d})
}

// Measure starts a timer and returns the function recording it under label.
func (t *Timing) Measure(label string) (stop func()) {
	start := time.Now()
	return func() { t.Add(label, time.Since(start)) }
}

// Merge adds every entry of other in order.
func (t *Timing) Merge(other *Timing) {
	if other == nil || other == t {
		return
	}
	for _, e := range other.Entries() {
		t.AddNamed(e.Name, e.Label, e.Duration)
	}
}

// Entries returns a copy of the entries in insertion order.
func (t *Timing) Entries() []TimingEntry {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TimingEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Timing) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// ServerTimingHeader formats the entries as a Server-Timing header value.
// An invalid metric name fails the whole header.
func (t *Timing) ServerTimingHeader() (string, error) {
	entries := t.Entries()
	parts := make([]string, 0, len(entries))
	for i, e := range entries {
		name := e.Name
		if name == "" {
			name = metricName(i)
		}
		if !metricNameRE.MatchString(name) {
			return "", fmt.Errorf("server-timing: invalid metric name %q", name)
		}
		ms := float64(e.Duration.Microseconds()) / 1000
		parts = append(parts, fmt.Sprintf("%s;desc=%s;dur=%s",
			name, quoteLabel(e.Label), strconv.FormatFloat(ms, 'f', 1, 64)))
	}
	return strings.Join(parts, ", "), nil
}

// metricName maps 0..25 to a..z and everything past to "zz".
func metricName(i int) string {
	if i < 26 {
		return string(rune('a' + i))
	}
	return "zz"
}

func quoteLabel(label string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(label) + `"`
}
