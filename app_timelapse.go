package main

import (
	"fmt"
	"log"

	"timeglobe/internal/video"
)

// ExportTimelapse encodes every already-loaded slot of a layer into a
// timelapse video. Slots whose fetch has not completed (or failed) are
// skipped, not waited for; run PrePopulateLayer and poll readiness first
// for a complete export.
func (a *App) ExportTimelapse(name, outputPath string, opts *video.Options) error {
	l, err := a.Layer(name)
	if err != nil {
		return err
	}

	slots, err := l.Slots()
	if err != nil {
		return err
	}

	frames := make([]video.Frame, 0, len(slots))
	skipped := 0
	for _, slot := range slots {
		res, ok := a.manager.Resource(slot.DataPath)
		if !ok {
			skipped++
			continue
		}
		frames = append(frames, video.Frame{Image: res.Image, Date: slot.Timestamp})
	}
	if len(frames) == 0 {
		return fmt.Errorf("layer %s has no loaded slots to export", name)
	}
	if skipped > 0 {
		log.Printf("[App] Timelapse for %s: skipping %d unloaded slots", name, skipped)
	}

	exporter, err := video.NewExporter(opts)
	if err != nil {
		return err
	}
	defer exporter.Close()

	if err := exporter.Export(frames, outputPath); err != nil {
		return err
	}

	a.TrackEvent("timelapse_exported", map[string]interface{}{
		"layer":   name,
		"frames":  len(frames),
		"skipped": skipped,
	})
	return nil
}
