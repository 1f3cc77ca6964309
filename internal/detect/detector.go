// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package detect

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	pigo "github.com/esimov/pigo/core"

	"github.com/ManuGH/clipveil/internal/log"
	"github.com/ManuGH/clipveil/internal/media"
)

// Detector finds face regions on a representative frame of an asset.
// Zero faces is a normal outcome: an empty slice with a nil error.
type Detector interface {
	Detect(ctx context.Context, asset media.Asset) ([]Region, error)
}

// PigoDetector runs the pigo cascade classifier. It is deterministic for a
// given model file and frame.
type PigoDetector struct {
	CascadePath string
	MinQuality  float32 // detections below this score are dropped

	once       sync.Once
	classifier *pigo.Pigo
	loadErr    error
}

// NewPigoDetector creates a detector backed by the cascade model at path.
func NewPigoDetector(cascadePath string) *PigoDetector {
	return &PigoDetector{
		CascadePath: cascadePath,
		MinQuality:  5.0,
	}
}

func (d *PigoDetector) load() (*pigo.Pigo, error) {
	d.once.Do(func() {
		data, err := os.ReadFile(d.CascadePath)
		if err != nil {
			d.loadErr = fmt.Errorf("failed to read cascade model: %w", err)
			return
		}
		classifier, err := pigo.NewPigo().Unpack(data)
		if err != nil {
			d.loadErr = fmt.Errorf("failed to unpack cascade model: %w", err)
			return
		}
		d.classifier = classifier
	})
	return d.classifier, d.loadErr
}

// Detect extracts the representative frame and runs the classifier on it.
func (d *PigoDetector) Detect(ctx context.Context, asset media.Asset) ([]Region, error) {
	classifier, err := d.load()
	if err != nil {
		return nil, err
	}

	frame, err := RepresentativeFrame(ctx, asset.URI)
	if err != nil {
		return nil, err
	}

	bounds := frame.Bounds()
	rows, cols := bounds.Dy(), bounds.Dx()

	maxSize := rows
	if cols < rows {
		maxSize = cols
	}

	params := pigo.CascadeParams{
		MinSize:     20,
		MaxSize:     maxSize,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: grayscale(frame),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := classifier.RunCascade(params, 0.0)
	dets = classifier.ClusterDetections(dets, 0.2)

	regions := toRegions(dets, d.MinQuality, cols, rows)

	logger := log.WithComponentFromContext(ctx, "detect")
	logger.Info().
		Int(log.FieldFaces, len(regions)).
		Str(log.FieldPath, asset.URI).
		Msg("face detection complete")

	return regions, nil
}

// toRegions converts pigo's center+scale detections into clamped bounding
// boxes, dropping low-quality hits.
func toRegions(dets []pigo.Detection, minQ float32, width, height int) []Region {
	regions := make([]Region, 0, len(dets))
	for _, det := range dets {
		if det.Q < minQ {
			continue
		}
		half := det.Scale / 2
		r := Region{
			X:          det.Col - half,
			Y:          det.Row - half,
			W:          det.Scale,
			H:          det.Scale,
			Confidence: float64(det.Q),
		}.Clamp(width, height)
		if !r.Empty() {
			regions = append(regions, r)
		}
	}
	return regions
}

// grayscale converts an RGBA frame to the luminance plane pigo expects.
func grayscale(img *image.RGBA) []uint8 {
	bounds := img.Bounds()
	rows, cols := bounds.Dy(), bounds.Dx()
	gray := make([]uint8, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			i := img.PixOffset(x, y)
			r, g, b := img.Pix[i], img.Pix[i+1], img.Pix[i+2]
			gray[y*cols+x] = uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b)) / 1000)
		}
	}
	return gray
}
