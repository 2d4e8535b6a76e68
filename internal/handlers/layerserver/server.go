package layerserver

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"timeglobe/internal/layer"
	"timeglobe/internal/resource"
)

// Server exposes the time-series layers over a local HTTP API: frame
// selection by query time, prefetch status, and cache statistics.
type Server struct {
	ctx       context.Context
	cache     *resource.Cache
	serverURL string
	httpSrv   *http.Server

	mu     sync.RWMutex
	layers map[string]*layer.TimeSeriesLayer
	order  []string // stable listing order
}

// NewServer creates a layer server over the given layers.
func NewServer(ctx context.Context, layers []*layer.TimeSeriesLayer, cache *resource.Cache) *Server {
	s := &Server{
		ctx:    ctx,
		layers: make(map[string]*layer.TimeSeriesLayer),
		cache:  cache,
	}
	for _, l := range layers {
		s.layers[l.Name()] = l
		s.order = append(s.order, l.Name())
	}
	return s
}

// AddLayer registers a layer activated after the server started, making it
// visible to the listing and per-layer routes.
func (s *Server) AddLayer(l *layer.TimeSeriesLayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.layers[l.Name()]; exists {
		return
	}
	s.layers[l.Name()] = l
	s.order = append(s.order, l.Name())
}

// URL returns the server's base URL once started.
func (s *Server) URL() string {
	return s.serverURL
}

// corsMiddleware allows browser-hosted renderers to query the server.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server. An empty addr listens on the loopback
// interface with a random port.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/layers", s.handleLayers)
	mux.HandleFunc("/layers/", s.handleLayer)
	mux.HandleFunc("/cache/stats", s.handleCacheStats)

	if addr == "" {
		addr = "127.0.0.1:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start layer server: %w", err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	host, _, _ := net.SplitHostPort(listener.Addr().String())
	s.serverURL = fmt.Sprintf("http://%s:%d", host, port)
	log.Printf("[LayerServer] Started on %s", s.serverURL)

	s.httpSrv = &http.Server{
		Handler: corsMiddleware(mux),
	}

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("[LayerServer] Stopped: %v", err)
		}
	}()

	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
