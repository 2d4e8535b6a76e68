package resource

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	// Globe composites arrive as PNG in the common case, but sources also
	// publish JPEG, GIF, TIFF and WebP payloads.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// State describes where a resource is in its fetch lifecycle.
type State int

const (
	StateNotRequested State = iota
	StateInFlight
	StateReady
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateNotRequested:
		return "not_requested"
	case StateInFlight:
		return "in_flight"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Fetcher is the opaque byte-fetch primitive: given a locator it yields a
// decodable image payload or a failure.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// Manager drives the fetch state machine for image resources. It guarantees
// at most one outstanding fetch per identifier, caches decoded images, and
// suppresses re-fetches of recently failed identifiers.
//
// One Manager is shared by all layers in a process; layers coordinate only
// via identifier namespacing (distinct data paths never collide).
type Manager struct {
	cache   *Cache
	absent  *AbsentTracker
	fetcher Fetcher
	sem     *semaphore.Weighted
	timeout time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
	onReady  func(identifier string)

	now func() time.Time
}

// NewManager creates a fetch manager. maxConcurrent bounds the number of
// simultaneously executing fetches; timeout bounds each individual fetch
// so a hung transfer resolves to failure instead of pinning its identifier
// in-flight forever.
func NewManager(cache *Cache, absent *AbsentTracker, fetcher Fetcher, maxConcurrent int, timeout time.Duration) *Manager {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Manager{
		cache:    cache,
		absent:   absent,
		fetcher:  fetcher,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		timeout:  timeout,
		inflight: make(map[string]struct{}),
		now:      time.Now,
	}
}

// SetOnResourceReady sets the fire-and-forget notification emitted when a
// fetch succeeds (unless the caller suppressed it). Meant to trigger a
// host redraw.
func (m *Manager) SetOnResourceReady(fn func(identifier string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReady = fn
}

// EnsureFetchStarted issues at most one asynchronous fetch for the
// identifier. Already-ready, in-flight, and cool-down-suppressed
// identifiers are no-ops. The call never blocks on the fetch itself.
//
// suppressNotify skips the ready notification on success; bulk prefetch
// uses it to avoid redundant redraw signaling.
func (m *Manager) EnsureFetchStarted(ctx context.Context, identifier, locator string, suppressNotify bool) {
	m.mu.Lock()
	if m.cache.Contains(identifier) {
		m.mu.Unlock()
		return
	}
	if _, inFlight := m.inflight[identifier]; inFlight {
		m.mu.Unlock()
		return
	}
	if m.absent.Suppressed(identifier, m.now()) {
		m.mu.Unlock()
		return
	}
	m.inflight[identifier] = struct{}{}
	m.mu.Unlock()

	// An issued fetch runs to completion: cancellation of the caller (a
	// short-lived render request, say) must not abort the transfer or
	// absent-mark the identifier. The per-fetch timeout still applies.
	go m.fetch(context.WithoutCancel(ctx), identifier, locator, suppressNotify)
}

// fetch performs the actual byte fetch and decode for one identifier.
func (m *Manager) fetch(ctx context.Context, identifier, locator string, suppressNotify bool) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.fail(identifier, fmt.Errorf("acquire fetch slot: %w", err))
		return
	}
	defer m.sem.Release(1)

	fetchCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	data, err := m.fetcher.Fetch(fetchCtx, locator)
	if err != nil {
		m.fail(identifier, err)
		return
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		m.fail(identifier, fmt.Errorf("decode payload: %w", err))
		return
	}

	res := &Resource{
		Identifier: identifier,
		Image:      img,
		SizeBytes:  imageSizeBytes(img),
		FetchedAt:  m.now(),
	}

	// Insert into the cache before leaving the in-flight set so a
	// concurrent EnsureFetchStarted can never observe the identifier as
	// neither cached nor in-flight.
	m.cache.Set(res)
	m.absent.Clear(identifier)

	m.mu.Lock()
	delete(m.inflight, identifier)
	notify := m.onReady
	m.mu.Unlock()

	log.Printf("[Fetch] Loaded %s (%s, %d bytes decoded)", identifier, format, res.SizeBytes)

	if !suppressNotify && notify != nil {
		notify(identifier)
	}
}

// fail marks the identifier absent and releases its in-flight slot. The
// absent mark lands before the in-flight removal so no re-fetch can slip
// in between.
func (m *Manager) fail(identifier string, err error) {
	log.Printf("[Fetch] Failed %s: %v", identifier, err)
	m.absent.Mark(identifier, m.now())

	m.mu.Lock()
	delete(m.inflight, identifier)
	m.mu.Unlock()
}

// IsReady reports whether the identifier's resource is loaded. Pure query,
// no side effects.
func (m *Manager) IsReady(identifier string) bool {
	return m.cache.Contains(identifier)
}

// Resource returns the loaded resource for the identifier, if any.
func (m *Manager) Resource(identifier string) (*Resource, bool) {
	return m.cache.Get(identifier)
}

// State reports the identifier's position in the fetch lifecycle.
func (m *Manager) State(identifier string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cache.Contains(identifier) {
		return StateReady
	}
	if _, inFlight := m.inflight[identifier]; inFlight {
		return StateInFlight
	}
	// An absent mark whose cool-down has lapsed is retryable, so it
	// classifies as not-requested rather than failed.
	if m.absent.Suppressed(identifier, m.now()) {
		return StateFailed
	}
	return StateNotRequested
}

// InFlightCount returns the number of outstanding fetches.
func (m *Manager) InFlightCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight)
}

// imageSizeBytes estimates the decoded footprint of an image at four bytes
// per pixel, matching what a renderer upload would occupy.
func imageSizeBytes(img image.Image) int64 {
	bounds := img.Bounds()
	return int64(bounds.Dx()) * int64(bounds.Dy()) * 4
}
