package main

import (
	"context"
	"fmt"
	"log"
	goruntime "runtime"
	"sync"
	"time"

	"github.com/posthog/posthog-go"

	"timeglobe/internal/config"
	"timeglobe/internal/fetch"
	"timeglobe/internal/handlers/layerserver"
	"timeglobe/internal/layer"
	"timeglobe/internal/resource"
	"timeglobe/internal/timeseq"
)

// Linker flags
var (
	PostHogKey  string
	PostHogHost string
	AppVersion  string = "0.0.0-dev"
)

// App wires the time-series layers to the shared resource subsystem and
// the local HTTP surface.
type App struct {
	ctx      context.Context
	settings *config.Settings

	cache   *resource.Cache
	absent  *resource.AbsentTracker
	manager *resource.Manager

	mu         sync.Mutex
	layers     map[string]*layer.TimeSeriesLayer
	layerOrder []string

	server   *layerserver.Server
	phClient posthog.Client
	devMode  bool

	// Host redraw hook; fired when a non-suppressed fetch completes.
	onRedraw func(identifier string)
}

// NewApp creates the application, loading settings and building every
// enabled layer. Layer misconfiguration is fatal here, at setup time.
func NewApp() (*App, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		log.Printf("Failed to load settings, using defaults: %v", err)
		settings = config.DefaultSettings()
	}
	log.Printf("Settings loaded from: %s", config.GetSettingsPath())

	resourceCache := resource.NewCache(settings.CacheMaxSizeMB)
	log.Printf("Resource cache initialized (max %d MB)", settings.CacheMaxSizeMB)

	absent := resource.NewAbsentTracker(settings.CoolDown())
	fetcher := fetch.NewClient(settings.FetchTimeout())
	manager := resource.NewManager(resourceCache, absent, fetcher, settings.FetchWorkers, settings.FetchTimeout())

	// Initialize PostHog
	var phClient posthog.Client
	if PostHogKey != "" {
		client, err := posthog.NewWithConfig(PostHogKey, posthog.Config{Endpoint: PostHogHost})
		if err != nil {
			log.Printf("Failed to initialize PostHog: %v", err)
		} else {
			phClient = client
		}
	}

	a := &App{
		settings: settings,
		cache:    resourceCache,
		absent:   absent,
		manager:  manager,
		layers:   make(map[string]*layer.TimeSeriesLayer),
		phClient: phClient,
	}

	for i := range settings.Layers {
		spec := &settings.Layers[i]
		if !spec.Enabled {
			continue
		}
		if _, err := a.addLayer(spec); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// addLayer validates one layer spec and wires it to the shared manager.
func (a *App) addLayer(spec *config.LayerSpec) (*layer.TimeSeriesLayer, error) {
	if err := config.ValidateLayerSpec(spec); err != nil {
		return nil, fmt.Errorf("layer %q: %w", spec.Name, err)
	}
	start, _ := time.Parse(time.RFC3339, spec.Start)
	end, _ := time.Parse(time.RFC3339, spec.End)
	interval, err := timeseq.ParseInterval(spec.Interval)
	if err != nil {
		return nil, fmt.Errorf("layer %q: %w", spec.Name, err)
	}

	l, err := layer.New(layer.Config{
		Name:     spec.Name,
		BasePath: spec.BasePath,
		Start:    start,
		End:      end,
		Interval: interval,
		Params: layer.DisplayParams{
			Opacity:       spec.Opacity,
			DetailControl: spec.DetailControl,
		},
	}, a.manager)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.layers[spec.Name] = l
	a.layerOrder = append(a.layerOrder, spec.Name)
	a.mu.Unlock()

	log.Printf("Layer %q configured: %s to %s every %s", spec.Name, spec.Start, spec.End, spec.Interval)
	return l, nil
}

// startup wires the redraw signal, starts the layer server, and kicks off
// prefetch for every layer in the background.
func (a *App) startup(ctx context.Context) error {
	a.ctx = ctx

	a.manager.SetOnResourceReady(func(identifier string) {
		if a.devMode {
			log.Printf("[App] Redraw requested by %s", identifier)
		}
		a.mu.Lock()
		redraw := a.onRedraw
		a.mu.Unlock()
		if redraw != nil {
			redraw(identifier)
		}
	})

	a.server = layerserver.NewServer(ctx, a.orderedLayers(), a.cache)
	if err := a.server.Start(a.settings.ListenAddr); err != nil {
		return err
	}

	go func() {
		for _, l := range a.orderedLayers() {
			if err := l.PrePopulate(ctx); err != nil {
				log.Printf("[App] Prefetch setup failed for %s: %v", l.Name(), err)
			}
		}
	}()

	a.TrackEvent("app_started", map[string]interface{}{
		"version": AppVersion,
		"os":      goruntime.GOOS,
		"arch":    goruntime.GOARCH,
		"layers":  len(a.layers),
	})

	return nil
}

// orderedLayers returns the layers in configuration order.
func (a *App) orderedLayers() []*layer.TimeSeriesLayer {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*layer.TimeSeriesLayer, 0, len(a.layerOrder))
	for _, name := range a.layerOrder {
		out = append(out, a.layers[name])
	}
	return out
}

// Layer returns a configured layer by name.
func (a *App) Layer(name string) (*layer.TimeSeriesLayer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, exists := a.layers[name]
	if !exists {
		return nil, fmt.Errorf("unknown layer: %s", name)
	}
	return l, nil
}

// SetOnRedraw sets the host redraw hook.
func (a *App) SetOnRedraw(fn func(identifier string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onRedraw = fn
}

// SetRenderSink wires an external renderer to one layer.
func (a *App) SetRenderSink(name string, sink layer.RenderSink) error {
	l, err := a.Layer(name)
	if err != nil {
		return err
	}
	l.SetRenderSink(sink)
	return nil
}

// PrePopulateLayer issues prefetches for every slot of one layer.
func (a *App) PrePopulateLayer(name string) error {
	l, err := a.Layer(name)
	if err != nil {
		return err
	}
	return l.PrePopulate(a.ctx)
}

// IsLayerPrePopulated reports whether every slot of the layer is loaded.
func (a *App) IsLayerPrePopulated(name string) (bool, error) {
	l, err := a.Layer(name)
	if err != nil {
		return false, err
	}
	return l.IsPrePopulated(), nil
}

// RenderLayer renders the layer at the given query time through its
// configured render sink.
func (a *App) RenderLayer(name string, query time.Time) (layer.RenderStatus, error) {
	l, err := a.Layer(name)
	if err != nil {
		return layer.RenderStatus{}, err
	}
	return l.Render(a.ctx, query)
}

// CacheStats returns resource cache statistics.
func (a *App) CacheStats() (entries int, sizeBytes int64, maxBytes int64) {
	return a.cache.Stats()
}

// ServerURL returns the layer server's base URL.
func (a *App) ServerURL() string {
	if a.server == nil {
		return ""
	}
	return a.server.URL()
}

// TrackEvent sends an event to PostHog.
func (a *App) TrackEvent(event string, props map[string]interface{}) {
	if a.phClient != nil {
		a.phClient.Enqueue(posthog.Capture{
			DistinctId: "backend_user",
			Event:      event,
			Properties: props,
		})
	}
}

// Shutdown cleans up resources.
func (a *App) Shutdown(ctx context.Context) {
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			log.Printf("[App] Server shutdown: %v", err)
		}
	}
	if a.phClient != nil {
		a.phClient.Close()
	}
}
