package main

import (
	"fmt"
	"log"

	"timeglobe/internal/config"
)

// ===================
// Settings Management
// ===================

// GetSettings returns current settings
func (a *App) GetSettings() (*config.Settings, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Return a copy to prevent external modifications
	settingsCopy := *a.settings
	return &settingsCopy, nil
}

// SaveSettings saves settings to disk and updates app state
func (a *App) SaveSettings(settings *config.Settings) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if settings.CacheMaxSizeMB <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if settings.FetchWorkers <= 0 {
		return fmt.Errorf("fetch worker count must be positive")
	}
	if settings.CoolDownMinutes <= 0 {
		return fmt.Errorf("cool-down must be positive")
	}
	for i := range settings.Layers {
		if err := config.ValidateLayerSpec(&settings.Layers[i]); err != nil {
			return err
		}
	}

	if err := config.SaveSettings(settings); err != nil {
		return err
	}

	a.settings = settings

	// Note: cache, fetch and layer settings require a restart to take effect
	log.Printf("Settings saved. Layer and cache settings will apply on next restart.")

	return nil
}

// GetSettingsPath returns the settings file path
func (a *App) GetSettingsPath() string {
	return config.GetSettingsPath()
}

// AddLayerSpec validates, activates and persists a new layer. Settings are
// only mutated once activation succeeded, so a rejected spec never sticks
// around to poison a later save.
func (a *App) AddLayerSpec(spec config.LayerSpec) error {
	if err := config.ValidateLayerSpec(&spec); err != nil {
		return err
	}

	a.mu.Lock()
	if _, exists := a.layers[spec.Name]; exists {
		a.mu.Unlock()
		return fmt.Errorf("layer %q already exists", spec.Name)
	}
	a.mu.Unlock()

	if spec.Enabled {
		l, err := a.addLayer(&spec)
		if err != nil {
			return err
		}
		if a.server != nil {
			a.server.AddLayer(l)
		}
	}

	a.mu.Lock()
	a.settings.Layers = append(a.settings.Layers, spec)
	settings := a.settings
	a.mu.Unlock()
	return config.SaveSettings(settings)
}
