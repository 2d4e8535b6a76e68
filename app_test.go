package main

import (
	"testing"

	"timeglobe/internal/config"
	"timeglobe/internal/layer"
)

func TestAddLayerSpecRejectedSpecLeavesNoTrace(t *testing.T) {
	a := &App{
		settings: config.DefaultSettings(),
		layers:   make(map[string]*layer.TimeSeriesLayer),
	}
	before := len(a.settings.Layers)

	spec := config.LayerSpec{
		Name:     "backwards",
		BasePath: "globe/backwards/",
		Start:    "2016-07-18T00:00:00Z",
		End:      "2016-07-12T00:00:00Z",
		Interval: "PT3H",
		Opacity:  1,
		Enabled:  true,
	}
	if err := a.AddLayerSpec(spec); err == nil {
		t.Fatal("expected error for start after end")
	}

	// A rejected spec must not linger in settings, where a later save
	// would persist it and poison the next boot.
	if got := len(a.settings.Layers); got != before {
		t.Errorf("settings.Layers = %d entries, want %d", got, before)
	}
	if _, err := a.Layer("backwards"); err == nil {
		t.Error("rejected layer must not be registered")
	}
}
