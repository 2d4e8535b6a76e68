package timeseq

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRange indicates a misconfigured sequence specification
// (start after end, zero interval, or an interval that would produce an
// unreasonable number of slots).
var ErrInvalidRange = errors.New("invalid time range")

// maxIntervals caps the slot table so a typo in an interval spec
// (e.g. PT3S over a year) fails loudly instead of allocating forever.
const maxIntervals = 10000

// PeriodicTimeSequence generates successive timestamps from start to end,
// advancing by a fixed interval and wrapping back to start past the end.
//
// When the interval does not evenly divide the range, the sequence rounds
// up: the final advance before the end clamps to end, producing a partial
// last step. Wrapping to start only ever happens from end itself.
type PeriodicTimeSequence struct {
	start    time.Time
	end      time.Time
	interval Interval
	current  time.Time
}

// NewPeriodicTimeSequence builds a sequence over [start, end] stepping by interval.
func NewPeriodicTimeSequence(start, end time.Time, interval Interval) (*PeriodicTimeSequence, error) {
	if start.After(end) {
		return nil, fmt.Errorf("%w: start %s after end %s", ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	if interval.IsZero() {
		return nil, fmt.Errorf("%w: zero interval", ErrInvalidRange)
	}
	if !interval.AddTo(start).After(start) {
		return nil, fmt.Errorf("%w: non-positive interval %s", ErrInvalidRange, interval)
	}
	return &PeriodicTimeSequence{
		start:    start,
		end:      end,
		interval: interval,
		current:  start,
	}, nil
}

// Current returns the sequence's current timestamp.
func (s *PeriodicTimeSequence) Current() time.Time {
	return s.current
}

// Start returns the first timestamp of the sequence.
func (s *PeriodicTimeSequence) Start() time.Time {
	return s.start
}

// End returns the last timestamp of the sequence.
func (s *PeriodicTimeSequence) End() time.Time {
	return s.end
}

// Interval returns the step size.
func (s *PeriodicTimeSequence) Interval() Interval {
	return s.interval
}

// Advance moves current forward by one interval. A step past end clamps to
// end (partial final step); advancing from end wraps back to start.
func (s *PeriodicTimeSequence) Advance() {
	if !s.current.Before(s.end) {
		s.current = s.start
		return
	}
	next := s.interval.AddTo(s.current)
	if next.After(s.end) {
		next = s.end
	}
	s.current = next
}

// Reset rewinds the sequence to its start timestamp.
func (s *PeriodicTimeSequence) Reset() {
	s.current = s.start
}

// IntervalCount returns the number of advances needed to reach end from
// start. A trailing partial step counts as a full interval (round-up).
func (s *PeriodicTimeSequence) IntervalCount() (int, error) {
	count := 0
	t := s.start
	for t.Before(s.end) {
		t = s.interval.AddTo(t)
		count++
		if count > maxIntervals {
			return 0, fmt.Errorf("%w: more than %d intervals between %s and %s",
				ErrInvalidRange, maxIntervals, s.start.Format(time.RFC3339), s.end.Format(time.RFC3339))
		}
	}
	return count, nil
}
