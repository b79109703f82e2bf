package flowline

import (
	"sync/atomic"
	"time"

	"github.com/randalmurphal/flowline/pkg/flowline/backpressure"
)

// Statistics holds a pipeline's event counters. All methods are safe for
// concurrent use. When disabled, recording is a no-op.
type Statistics struct {
	enabled atomic.Bool

	received  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	filtered  atomic.Int64
	inFlight  atomic.Int64
	rejected  [4]atomic.Int64

	totalTime atomic.Int64
	maxTime   atomic.Int64
}

// NewStatistics creates enabled or disabled statistics.
func NewStatistics(enabled bool) *Statistics {
	s := &Statistics{}
	s.enabled.Store(enabled)
	return s
}

// Enabled reports whether counters are being recorded.
func (s *Statistics) Enabled() bool {
	return s.enabled.Load()
}

// SetEnabled turns recording on or off. Counters are kept.
func (s *Statistics) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// Reset zeroes every counter except in-flight.
func (s *Statistics) Reset() {
	s.received.Store(0)
	s.processed.Store(0)
	s.failed.Store(0)
	s.filtered.Store(0)
	for i := range s.rejected {
		s.rejected[i].Store(0)
	}
	s.totalTime.Store(0)
	s.maxTime.Store(0)
}

func (s *Statistics) recordReceived() {
	if s.Enabled() {
		s.received.Add(1)
	}
}

func (s *Statistics) recordAdmitted() {
	s.inFlight.Add(1)
}

func (s *Statistics) recordRejected(reason backpressure.Reason) {
	if !s.Enabled() || int(reason) < 0 || int(reason) >= len(s.rejected) {
		return
	}
	s.rejected[reason].Add(1)
}

// recordCompleted counts a finished event. A nil result with no error is
// counted as filtered.
func (s *Statistics) recordCompleted(filtered bool, err error, d time.Duration) {
	s.inFlight.Add(-1)
	if !s.Enabled() {
		return
	}
	switch {
	case err != nil:
		s.failed.Add(1)
	case filtered:
		s.filtered.Add(1)
		s.processed.Add(1)
	default:
		s.processed.Add(1)
	}

	ns := int64(d)
	s.totalTime.Add(ns)
	for {
		cur := s.maxTime.Load()
		if ns <= cur || s.maxTime.CompareAndSwap(cur, ns) {
			break
		}
	}
}

// StatsSnapshot is a point-in-time copy of Statistics.
type StatsSnapshot struct {
	Received  int64
	Processed int64
	Failed    int64
	Filtered  int64
	InFlight  int64
	// Rejected is keyed by back-pressure reason.
	Rejected map[backpressure.Reason]int64

	TotalProcessingTime time.Duration
	MaxProcessingTime   time.Duration
}

// AverageProcessingTime returns the mean time per completed event.
func (s StatsSnapshot) AverageProcessingTime() time.Duration {
	n := s.Processed + s.Failed
	if n == 0 {
		return 0
	}
	return s.TotalProcessingTime / time.Duration(n)
}

// TotalRejected sums rejections over every reason.
func (s StatsSnapshot) TotalRejected() int64 {
	var n int64
	for _, v := range s.Rejected {
		n += v
	}
	return n
}

// Snapshot copies the current counters.
func (s *Statistics) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Received:            s.received.Load(),
		Processed:           s.processed.Load(),
		Failed:              s.failed.Load(),
		Filtered:            s.filtered.Load(),
		InFlight:            s.inFlight.Load(),
		Rejected:            make(map[backpressure.Reason]int64, len(s.rejected)),
		TotalProcessingTime: time.Duration(s.totalTime.Load()),
		MaxProcessingTime:   time.Duration(s.maxTime.Load()),
	}
	for _, r := range backpressure.Reasons() {
		snap.Rejected[r] = s.rejected[r].Load()
	}
	return snap
}

// FlowSummary counts declared and active pipelines, split into trigger
// flows (those with a source) and private flows (those without).
type FlowSummary struct {
	DeclaredTriggerFlows int
	ActiveTriggerFlows   int
	DeclaredPrivateFlows int
	ActivePrivateFlows   int
}

// Summarize builds a FlowSummary. A pipeline is active when started.
func Summarize(pipelines []*Pipeline) FlowSummary {
	var sum FlowSummary
	for _, p := range pipelines {
		active := p.IsStarted()
		if p.Source() != nil {
			sum.DeclaredTriggerFlows++
			if active {
				sum.ActiveTriggerFlows++
			}
			continue
		}
		sum.DeclaredPrivateFlows++
		if active {
			sum.ActivePrivateFlows++
		}
	}
	return sum
}
