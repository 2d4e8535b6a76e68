package video

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/icza/mjpeg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Frame is one timelapse frame: a slot's image and its timestamp.
type Frame struct {
	Image image.Image
	Date  time.Time
}

// Options configures a timelapse export.
type Options struct {
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	FrameDelay   float64 `json:"frameDelay"`   // seconds per frame
	Quality      int     `json:"quality"`      // JPEG quality for AVI frames
	OutputFormat string  `json:"outputFormat"` // "avi" or "gif"

	ShowDateOverlay bool    `json:"showDateOverlay"`
	DateFormat      string  `json:"dateFormat"`
	DateFontPath    string  `json:"dateFontPath"`
	DateFontSize    float64 `json:"dateFontSize"`
	DatePosition    string  `json:"datePosition"` // "top-left", "top-right", "bottom-left", "bottom-right"
}

// DefaultOptions returns sensible timelapse defaults.
func DefaultOptions() *Options {
	return &Options{
		Width:        1920,
		Height:       1080,
		FrameDelay:   0.25,
		Quality:      90,
		OutputFormat: "avi",
		DateFormat:   "2006-01-02 15:04",
		DateFontSize: 36,
		DatePosition: "bottom-right",
	}
}

// Exporter encodes a sequence of slot images into a timelapse video.
type Exporter struct {
	options *Options
	font    font.Face
}

// NewExporter creates a timelapse exporter.
func NewExporter(opts *Options) (*Exporter, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	e := &Exporter{options: opts}

	if opts.ShowDateOverlay && opts.DateFontPath != "" {
		if err := e.loadFont(); err != nil {
			// Continue without the overlay rather than failing the export.
			log.Printf("[Timelapse] Warning: failed to load font: %v", err)
		}
	}
	return e, nil
}

// loadFont loads the font for the date overlay.
func (e *Exporter) loadFont() error {
	fontBytes, err := os.ReadFile(e.options.DateFontPath)
	if err != nil {
		return fmt.Errorf("failed to read font file: %w", err)
	}

	f, err := opentype.Parse(fontBytes)
	if err != nil {
		return fmt.Errorf("failed to parse font: %w", err)
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    e.options.DateFontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return fmt.Errorf("failed to create font face: %w", err)
	}

	e.font = face
	return nil
}

// Export encodes the frames into the configured output format.
func (e *Exporter) Export(frames []Frame, outputPath string) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to export")
	}
	switch strings.ToLower(e.options.OutputFormat) {
	case "gif":
		return e.exportGIF(frames, outputPath)
	default:
		return e.exportMotionJPEG(frames, outputPath)
	}
}

// renderFrame scales a slot image to the output dimensions and applies the
// date overlay.
func (e *Exporter) renderFrame(src image.Image, date time.Time) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, e.options.Width, e.options.Height))
	e.resizeAndDrawImage(dst, src)
	if e.options.ShowDateOverlay {
		e.drawDateOverlay(dst, date)
	}
	return dst
}

// resizeAndDrawImage scales src into dst with nearest-neighbor sampling
// (fast, good enough for video frames).
func (e *Exporter) resizeAndDrawImage(dst *image.RGBA, src image.Image) {
	bounds := src.Bounds()
	dstBounds := dst.Bounds()

	scaleX := float64(bounds.Dx()) / float64(dstBounds.Dx())
	scaleY := float64(bounds.Dy()) / float64(dstBounds.Dy())

	for dy := dstBounds.Min.Y; dy < dstBounds.Max.Y; dy++ {
		for dx := dstBounds.Min.X; dx < dstBounds.Max.X; dx++ {
			sx := bounds.Min.X + int(float64(dx)*scaleX)
			sy := bounds.Min.Y + int(float64(dy)*scaleY)
			if sx < bounds.Max.X && sy < bounds.Max.Y {
				dst.Set(dx, dy, src.At(sx, sy))
			}
		}
	}
}

// drawDateOverlay draws the slot timestamp onto a frame with a drop shadow.
func (e *Exporter) drawDateOverlay(dst *image.RGBA, date time.Time) {
	if e.font == nil {
		return
	}

	dateStr := date.Format(e.options.DateFormat)

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: e.font,
	}

	textBounds, _ := drawer.BoundString(dateStr)
	textWidth := (textBounds.Max.X - textBounds.Min.X).Ceil()
	textHeight := (textBounds.Max.Y - textBounds.Min.Y).Ceil()

	padding := 20
	var x, y int
	switch e.options.DatePosition {
	case "top-left":
		x = padding
		y = padding + textHeight
	case "top-right":
		x = e.options.Width - textWidth - padding
		y = padding + textHeight
	case "bottom-left":
		x = padding
		y = e.options.Height - padding
	default: // bottom-right
		x = e.options.Width - textWidth - padding
		y = e.options.Height - padding
	}

	shadowDrawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.RGBA{0, 0, 0, 180}),
		Face: e.font,
		Dot:  fixed.P(x+2, y+2),
	}
	shadowDrawer.DrawString(dateStr)

	drawer.Dot = fixed.P(x, y)
	drawer.DrawString(dateStr)
}

// exportMotionJPEG writes an MJPEG AVI.
func (e *Exporter) exportMotionJPEG(frames []Frame, outputPath string) error {
	if !strings.HasSuffix(strings.ToLower(outputPath), ".avi") {
		outputPath = strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".avi"
	}

	// Each frame shows for FrameDelay seconds, so FPS = 1/FrameDelay.
	effectiveFPS := int(1.0 / e.options.FrameDelay)
	if effectiveFPS < 1 {
		effectiveFPS = 1
	}
	if effectiveFPS > 30 {
		effectiveFPS = 30
	}

	writer, err := mjpeg.New(outputPath, int32(e.options.Width), int32(e.options.Height), int32(effectiveFPS))
	if err != nil {
		return fmt.Errorf("failed to create video writer: %w", err)
	}
	defer writer.Close()

	for i, frame := range frames {
		rendered := e.renderFrame(frame.Image, frame.Date)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, rendered, &jpeg.Options{Quality: e.options.Quality}); err != nil {
			return fmt.Errorf("failed to encode frame %d as JPEG: %w", i, err)
		}
		if err := writer.AddFrame(buf.Bytes()); err != nil {
			return fmt.Errorf("failed to add frame %d: %w", i, err)
		}
	}

	log.Printf("[Timelapse] MJPEG video exported: %s (%d frames)", outputPath, len(frames))
	return nil
}

// exportGIF writes an animated GIF.
func (e *Exporter) exportGIF(frames []Frame, outputPath string) error {
	palettedImages := make([]*image.Paletted, 0, len(frames))
	delays := make([]int, 0, len(frames))

	// GIF delays are in 100ths of a second
	delay := int(e.options.FrameDelay * 100)
	if delay < 1 {
		delay = 1
	}

	for _, frame := range frames {
		rendered := e.renderFrame(frame.Image, frame.Date)

		bounds := rendered.Bounds()
		palettedImg := image.NewPaletted(bounds, palette.Plan9)
		draw.FloydSteinberg.Draw(palettedImg, bounds, rendered, image.Point{})

		palettedImages = append(palettedImages, palettedImg)
		delays = append(delays, delay)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := gif.EncodeAll(f, &gif.GIF{
		Image: palettedImages,
		Delay: delays,
		Config: image.Config{
			Width:  e.options.Width,
			Height: e.options.Height,
		},
	}); err != nil {
		return fmt.Errorf("failed to encode GIF: %w", err)
	}

	log.Printf("[Timelapse] Animated GIF exported: %s (%d frames)", outputPath, len(frames))
	return nil
}

// ExportStillPNG writes a single rendered frame as PNG, useful for
// verifying overlay and scaling settings before a full export.
func (e *Exporter) ExportStillPNG(frame Frame, outputPath string) error {
	rendered := e.renderFrame(frame.Image, frame.Date)

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, rendered); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}

// Close releases font resources.
func (e *Exporter) Close() error {
	if e.font != nil {
		return e.font.Close()
	}
	return nil
}
