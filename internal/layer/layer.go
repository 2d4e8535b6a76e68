package layer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"timeglobe/internal/resource"
	"timeglobe/internal/timeseq"
)

// ErrMissingContext indicates a required external collaborator (the render
// sink) was absent when an operation needing it was invoked.
var ErrMissingContext = errors.New("render sink not configured")

// DisplayParams are the layer-level parameters handed to the renderer
// alongside a ready resource.
type DisplayParams struct {
	Opacity       float64  `json:"opacity"`
	DetailControl *float64 `json:"detailControl,omitempty"`
}

// RenderSink is the external renderer handoff. The layer never issues draw
// calls itself; it only selects which resource to hand over.
type RenderSink interface {
	Draw(res *resource.Resource, params DisplayParams)
}

// RenderStatus reports what a Render call selected and whether the frame
// was drawn or skipped.
type RenderStatus struct {
	SlotKey  string    `json:"slotKey"`
	SlotTime time.Time `json:"slotTime"`
	Ready    bool      `json:"ready"`
	Drawn    bool      `json:"drawn"`
}

// TimeSeriesLayer presents a temporal sequence of full-globe images as a
// single logical layer whose displayed image is selected by a query time.
type TimeSeriesLayer struct {
	name    string
	seq     *timeseq.PeriodicTimeSequence
	index   *timeseq.SlotIndex
	manager *resource.Manager
	params  DisplayParams

	mu          sync.Mutex
	sink        RenderSink
	currentTime time.Time
}

// Config describes one time-series layer.
type Config struct {
	Name     string
	BasePath string // prefix for per-slot data paths (URL or directory)
	Start    time.Time
	End      time.Time
	Interval timeseq.Interval
	Params   DisplayParams
}

// New creates a layer from its configuration. Sequence misconfiguration
// (start after end, zero interval) fails here, at setup time.
func New(cfg Config, manager *resource.Manager) (*TimeSeriesLayer, error) {
	seq, err := timeseq.NewPeriodicTimeSequence(cfg.Start, cfg.End, cfg.Interval)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", cfg.Name, err)
	}
	return &TimeSeriesLayer{
		name:        cfg.Name,
		seq:         seq,
		index:       timeseq.NewSlotIndex(cfg.BasePath),
		manager:     manager,
		params:      cfg.Params,
		currentTime: cfg.Start,
	}, nil
}

// Name returns the layer name.
func (l *TimeSeriesLayer) Name() string {
	return l.name
}

// Params returns the layer's display parameters.
func (l *TimeSeriesLayer) Params() DisplayParams {
	return l.params
}

// SetRenderSink wires the external renderer.
func (l *TimeSeriesLayer) SetRenderSink(sink RenderSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

// SetTime updates the layer's current query time.
func (l *TimeSeriesLayer) SetTime(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currentTime = t
}

// CurrentTime returns the layer's current query time.
func (l *TimeSeriesLayer) CurrentTime() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTime
}

// Slots returns the layer's slot table, building it if needed.
func (l *TimeSeriesLayer) Slots() ([]timeseq.Slot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.index.Build(l.seq); err != nil {
		return nil, err
	}
	return l.index.Slots(), nil
}

// PrePopulate builds the slot index if needed and issues a suppressed-notify
// fetch for every slot. It only guarantees that fetches have been issued,
// never that they completed; callers poll IsPrePopulated.
func (l *TimeSeriesLayer) PrePopulate(ctx context.Context) error {
	slots, err := l.Slots()
	if err != nil {
		return fmt.Errorf("layer %s: %w", l.name, err)
	}
	for _, slot := range slots {
		l.manager.EnsureFetchStarted(ctx, slot.DataPath, slot.DataPath, true)
	}
	log.Printf("[Layer] %s: issued prefetch for %d slots", l.name, len(slots))
	return nil
}

// IsPrePopulated reports whether every slot's resource is loaded. Pure
// aggregate query; returns false before the index is built.
func (l *TimeSeriesLayer) IsPrePopulated() bool {
	l.mu.Lock()
	slots := l.index.Slots()
	l.mu.Unlock()

	if len(slots) == 0 {
		return false
	}
	for _, slot := range slots {
		if !l.manager.IsReady(slot.DataPath) {
			return false
		}
	}
	return true
}

// Render resolves the query time against the sink configured via
// SetRenderSink. It fails with ErrMissingContext when no sink was wired.
func (l *TimeSeriesLayer) Render(ctx context.Context, query time.Time) (RenderStatus, error) {
	l.mu.Lock()
	sink := l.sink
	l.mu.Unlock()
	return l.RenderTo(ctx, query, sink)
}

// RenderTo resolves the query time to its nearest slot, lazily ensures that
// slot's fetch is underway, and hands the resource to the given sink when
// ready. A not-yet-ready resource skips the frame rather than blocking or
// erroring; fetch failures never surface here.
func (l *TimeSeriesLayer) RenderTo(ctx context.Context, query time.Time, sink RenderSink) (RenderStatus, error) {
	l.mu.Lock()
	l.currentTime = query
	err := l.index.Build(l.seq)
	if err != nil {
		l.mu.Unlock()
		return RenderStatus{}, fmt.Errorf("layer %s: %w", l.name, err)
	}
	slot, err := l.index.Nearest(query)
	l.mu.Unlock()
	if err != nil {
		return RenderStatus{}, fmt.Errorf("layer %s: %w", l.name, err)
	}

	if sink == nil {
		return RenderStatus{}, fmt.Errorf("layer %s: %w", l.name, ErrMissingContext)
	}

	// A query outside the prepopulated set still triggers an on-demand
	// fetch, with the redraw notification enabled.
	l.manager.EnsureFetchStarted(ctx, slot.DataPath, slot.DataPath, false)

	status := RenderStatus{SlotKey: slot.Key, SlotTime: slot.Timestamp}
	res, ok := l.manager.Resource(slot.DataPath)
	if !ok {
		return status, nil
	}
	status.Ready = true
	status.Drawn = true
	sink.Draw(res, l.params)
	return status, nil
}

// SlotState reports the fetch lifecycle state for one slot key.
func (l *TimeSeriesLayer) SlotState(key string) (resource.State, error) {
	slots, err := l.Slots()
	if err != nil {
		return resource.StateNotRequested, err
	}
	for _, slot := range slots {
		if slot.Key == key {
			return l.manager.State(slot.DataPath), nil
		}
	}
	return resource.StateNotRequested, fmt.Errorf("layer %s: no slot with key %q", l.name, key)
}
