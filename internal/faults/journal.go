package faults

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Entry is the JSON form of a recorded failure.
type Entry struct {
	Kind       Kind   `json:"kind"`
	Errno      int    `json:"errno"`
	ErrnoName  string `json:"errno_name"`
	DevicePath string `json:"device_path"`
	Message    string `json:"message"`
	AtUTC      string `json:"at_utc"`
}

// Journal is the default Reporter: it logs each failure at error level,
// keeps the most recent ones in memory and counts them per kind.
type Journal struct {
	log *zap.Logger

	mu      sync.Mutex
	max     int
	entries []Entry
	dropped uint64

	failures *prometheus.CounterVec
}

// NewJournal keeps up to maxEntries failures. reg may be nil.
func NewJournal(log *zap.Logger, reg prometheus.Registerer, maxEntries int) *Journal {
	if log == nil {
		log = zap.NewNop()
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	j := &Journal{
		log: log,
		max: maxEntries,
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hwmon",
			Name:      "device_failures_total",
			Help:      "Device attribute access failures reported, by kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(j.failures)
	}
	return j
}

func (j *Journal) Report(f *Failure) {
	if j == nil || f == nil {
		return
	}
	j.log.Error("device failure",
		zap.String("kind", string(f.Kind)),
		zap.Int("errno", int(f.Errno)),
		zap.String("device_path", f.DevicePath),
		zap.Error(f.Err),
	)
	j.failures.WithLabelValues(string(f.Kind)).Inc()

	e := Entry{
		Kind:       f.Kind,
		Errno:      int(f.Errno),
		ErrnoName:  f.Errno.Error(),
		DevicePath: f.DevicePath,
		AtUTC:      f.At.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if f.Err != nil {
		e.Message = f.Err.Error()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	if len(j.entries) > j.max {
		over := len(j.entries) - j.max
		j.entries = j.entries[over:]
		j.dropped += uint64(over)
	}
}

// Snapshot returns the recorded entries, oldest first.
func (j *Journal) Snapshot() (entries []Entry, dropped uint64) {
	if j == nil {
		return nil, 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Entry(nil), j.entries...), j.dropped
}

// Len returns how many entries are currently held.
func (j *Journal) Len() int {
	if j == nil {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}
