package layer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"timeglobe/internal/resource"
	"timeglobe/internal/timeseq"
)

// fakeFetcher serves a PNG payload for every locator, optionally failing a
// chosen subset.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	payload []byte
	failing map[string]bool // locator suffix -> fail
}

func newFakeFetcher(t *testing.T) *fakeFetcher {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	return &fakeFetcher{
		calls:   make(map[string]int),
		payload: buf.Bytes(),
		failing: make(map[string]bool),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	f.mu.Lock()
	f.calls[locator]++
	f.mu.Unlock()

	for suffix := range f.failing {
		if f.failing[suffix] && strings.HasSuffix(locator, suffix) {
			return nil, errors.New("simulated fetch failure")
		}
	}
	return f.payload, nil
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// recordSink records every handoff from the layer.
type recordSink struct {
	mu     sync.Mutex
	draws  []string
	params []DisplayParams
}

func (s *recordSink) Draw(res *resource.Resource, params DisplayParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draws = append(s.draws, res.Identifier)
	s.params = append(s.params, params)
}

func (s *recordSink) drawCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.draws)
}

func newTestLayer(t *testing.T, fetcher resource.Fetcher) (*TimeSeriesLayer, *resource.Manager) {
	t.Helper()
	interval, err := timeseq.ParseInterval("PT3H")
	if err != nil {
		t.Fatal(err)
	}
	cache := resource.NewCache(64)
	absent := resource.NewAbsentTracker(10 * time.Minute)
	manager := resource.NewManager(cache, absent, fetcher, 8, time.Second)

	l, err := New(Config{
		Name:     "weather",
		BasePath: "globe/weather/",
		Start:    time.Date(2016, time.July, 12, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2016, time.July, 18, 0, 0, 0, 0, time.UTC),
		Interval: interval,
		Params:   DisplayParams{Opacity: 0.8},
	}, manager)
	if err != nil {
		t.Fatal(err)
	}
	return l, manager
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestPrePopulateEndToEnd(t *testing.T) {
	fetcher := newFakeFetcher(t)
	l, _ := newTestLayer(t, fetcher)

	if l.IsPrePopulated() {
		t.Error("IsPrePopulated must be false before PrePopulate")
	}

	if err := l.PrePopulate(context.Background()); err != nil {
		t.Fatal(err)
	}

	slots, err := l.Slots()
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 49 {
		t.Fatalf("slot count = %d, want 49", len(slots))
	}

	waitFor(t, l.IsPrePopulated, "all slots to load")
	if got := fetcher.totalCalls(); got != 49 {
		t.Errorf("fetch calls = %d, want 49 (exactly one per slot)", got)
	}

	// A second PrePopulate is a complete no-op: everything is cached.
	if err := l.PrePopulate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := fetcher.totalCalls(); got != 49 {
		t.Errorf("fetch calls after second PrePopulate = %d, want 49", got)
	}
}

func TestRenderSelectsNearestSlot(t *testing.T) {
	fetcher := newFakeFetcher(t)
	l, _ := newTestLayer(t, fetcher)
	sink := &recordSink{}
	l.SetRenderSink(sink)

	if err := l.PrePopulate(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, l.IsPrePopulated, "prefetch")

	// 01:00 is 1h from slot "00" and 2h from slot "01".
	query := time.Date(2016, time.July, 12, 1, 0, 0, 0, time.UTC)
	status, err := l.Render(context.Background(), query)
	if err != nil {
		t.Fatal(err)
	}
	if status.SlotKey != "00" {
		t.Errorf("SlotKey = %q, want %q", status.SlotKey, "00")
	}
	if !status.Ready || !status.Drawn {
		t.Errorf("status = %+v, want ready and drawn", status)
	}
	if sink.drawCount() != 1 {
		t.Fatalf("draw count = %d, want 1", sink.drawCount())
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.draws[0] != "globe/weather/00.png" {
		t.Errorf("drawn resource = %q, want slot 00 data path", sink.draws[0])
	}
	if sink.params[0].Opacity != 0.8 {
		t.Errorf("opacity = %f, want 0.8", sink.params[0].Opacity)
	}
}

func TestRenderOnDemandWithoutPrePopulate(t *testing.T) {
	fetcher := newFakeFetcher(t)
	l, manager := newTestLayer(t, fetcher)
	sink := &recordSink{}
	l.SetRenderSink(sink)

	// First render issues the fetch and skips the frame.
	query := time.Date(2016, time.July, 12, 4, 0, 0, 0, time.UTC) // nearest "01" at 03:00
	status, err := l.Render(context.Background(), query)
	if err != nil {
		t.Fatal(err)
	}
	if status.SlotKey != "01" || status.Drawn {
		t.Errorf("first render status = %+v, want slot 01, not drawn", status)
	}

	waitFor(t, func() bool { return manager.IsReady("globe/weather/01.png") }, "on-demand fetch")
	if got := fetcher.totalCalls(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (only the rendered slot)", got)
	}

	// Second render of the same time observes the cache hit and draws.
	status, err = l.Render(context.Background(), query)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Drawn {
		t.Errorf("second render status = %+v, want drawn", status)
	}
}

func TestRenderMissingSink(t *testing.T) {
	fetcher := newFakeFetcher(t)
	l, _ := newTestLayer(t, fetcher)

	_, err := l.Render(context.Background(), time.Date(2016, time.July, 12, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrMissingContext) {
		t.Errorf("Render without sink: got %v, want ErrMissingContext", err)
	}
}

func TestFailedSlotStaysNotReady(t *testing.T) {
	fetcher := newFakeFetcher(t)
	fetcher.failing["05.png"] = true
	l, manager := newTestLayer(t, fetcher)
	sink := &recordSink{}
	l.SetRenderSink(sink)

	if err := l.PrePopulate(context.Background()); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		state, err := l.SlotState("05")
		return err == nil && state == resource.StateFailed
	}, "slot 05 to fail")
	waitFor(t, func() bool { return manager.IsReady("globe/weather/06.png") }, "other slots to load")

	if l.IsPrePopulated() {
		t.Error("IsPrePopulated must stay false while a slot is failed")
	}

	// Rendering at the failed slot's exact time does not crash and reports
	// a skipped frame rather than a wrong image.
	slotTime := time.Date(2016, time.July, 12, 15, 0, 0, 0, time.UTC) // slot "05"
	status, err := l.Render(context.Background(), slotTime)
	if err != nil {
		t.Fatal(err)
	}
	if status.SlotKey != "05" || status.Ready || status.Drawn {
		t.Errorf("render of failed slot = %+v, want slot 05 skipped", status)
	}
	if sink.drawCount() != 0 {
		t.Error("failed slot must not be handed to the sink")
	}
}
