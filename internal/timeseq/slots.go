package timeseq

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrEmptyIndex indicates a nearest-time query against an index that was
// never built (or built from a sequence that produced no slots).
var ErrEmptyIndex = errors.New("slot index is empty")

// Slot is one discrete time point in a periodic sequence along with its
// assigned short key and backing data path.
type Slot struct {
	Timestamp time.Time `json:"timestamp"`
	Key       string    `json:"key"`
	DataPath  string    `json:"dataPath"`
}

// SlotIndex owns the ordered collection of slots for one sequence and
// resolves arbitrary query times to the nearest slot.
//
// The index is owned by exactly one layer; nothing here is shared across
// instances.
type SlotIndex struct {
	basePath string
	slots    []Slot
}

// NewSlotIndex creates an empty index. Data paths are derived as
// basePath + key + ".png", so basePath may be a URL prefix or a directory
// path ending in a separator.
func NewSlotIndex(basePath string) *SlotIndex {
	return &SlotIndex{basePath: basePath}
}

// Build generates the slot table from the sequence: one slot per timestamp,
// keyed by zero-padded ordinal ("00", "01", ...). Rebuilding is skipped when
// the slot count already matches the expected count, so Build is idempotent.
func (x *SlotIndex) Build(seq *PeriodicTimeSequence) error {
	count, err := seq.IntervalCount()
	if err != nil {
		return err
	}
	expected := count + 1
	if len(x.slots) == expected {
		return nil
	}

	x.slots = make([]Slot, 0, expected)
	seq.Reset()
	for i := 0; i < expected; i++ {
		key := fmt.Sprintf("%02d", i)
		x.slots = append(x.slots, Slot{
			Timestamp: seq.Current(),
			Key:       key,
			DataPath:  x.basePath + key + ".png",
		})
		seq.Advance()
	}

	// Generation order is already ascending; the sort keeps the ordering
	// invariant independent of how the slots were produced.
	sort.Slice(x.slots, func(i, j int) bool {
		return x.slots[i].Timestamp.Before(x.slots[j].Timestamp)
	})
	return nil
}

// Len returns the number of slots in the index.
func (x *SlotIndex) Len() int {
	return len(x.slots)
}

// Slots returns a copy of the ordered slot table; callers may not mutate
// the index through it.
func (x *SlotIndex) Slots() []Slot {
	out := make([]Slot, len(x.slots))
	copy(out, x.slots)
	return out
}

// Nearest resolves a query time to the closest slot. Queries at or before
// the first slot return the first slot; at or after the last return the
// last. A query exactly equidistant between two adjacent slots resolves to
// the earlier one so repeated renders pick a stable frame.
func (x *SlotIndex) Nearest(query time.Time) (Slot, error) {
	if len(x.slots) == 0 {
		return Slot{}, ErrEmptyIndex
	}
	first, last := x.slots[0], x.slots[len(x.slots)-1]
	if !query.After(first.Timestamp) {
		return first, nil
	}
	if !query.Before(last.Timestamp) {
		return last, nil
	}

	// Binary search for the first slot at or after the query, then compare
	// against the slot before it.
	right := sort.Search(len(x.slots), func(i int) bool {
		return !x.slots[i].Timestamp.Before(query)
	})
	left := right - 1

	deltaLeft := query.Sub(x.slots[left].Timestamp)
	deltaRight := x.slots[right].Timestamp.Sub(query)
	if deltaLeft <= deltaRight {
		return x.slots[left], nil
	}
	return x.slots[right], nil
}
