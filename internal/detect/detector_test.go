// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package detect

import (
	"image"
	"image/color"
	"testing"

	pigo "github.com/esimov/pigo/core"
	"github.com/stretchr/testify/assert"
)

func TestRegion_Inflate(t *testing.T) {
	r := Region{X: 100, Y: 100, W: 50, H: 50}.Inflate(10)
	assert.Equal(t, Region{X: 90, Y: 90, W: 70, H: 70}, r)
}

func TestRegion_Clamp(t *testing.T) {
	tests := []struct {
		name string
		in   Region
		want Region
	}{
		{
			"inside untouched",
			Region{X: 10, Y: 10, W: 20, H: 20},
			Region{X: 10, Y: 10, W: 20, H: 20},
		},
		{
			"negative origin trimmed",
			Region{X: -5, Y: -5, W: 20, H: 20},
			Region{X: 0, Y: 0, W: 15, H: 15},
		},
		{
			"overflow trimmed",
			Region{X: 90, Y: 90, W: 20, H: 20},
			Region{X: 90, Y: 90, W: 10, H: 10},
		},
		{
			"fully outside collapses",
			Region{X: 200, Y: 200, W: 20, H: 20},
			Region{X: 100, Y: 100, W: 0, H: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Clamp(100, 100)
			got.Confidence = 0
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegion_Empty(t *testing.T) {
	assert.True(t, Region{W: 0, H: 10}.Empty())
	assert.True(t, Region{W: 10, H: -1}.Empty())
	assert.False(t, Region{W: 1, H: 1}.Empty())
}

func TestToRegions(t *testing.T) {
	dets := []pigo.Detection{
		{Row: 50, Col: 50, Scale: 40, Q: 10},
		{Row: 50, Col: 50, Scale: 40, Q: 1}, // below quality floor
		{Row: 500, Col: 500, Scale: 40, Q: 10}, // outside the frame
	}

	regions := toRegions(dets, 5.0, 100, 100)
	assert.Len(t, regions, 1)
	assert.Equal(t, 30, regions[0].X)
	assert.Equal(t, 30, regions[0].Y)
	assert.Equal(t, 40, regions[0].W)
	assert.InDelta(t, 10.0, regions[0].Confidence, 1e-9)
}

func TestToRegions_EmptyInput(t *testing.T) {
	assert.Empty(t, toRegions(nil, 5.0, 100, 100))
}

func TestGrayscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	img.SetRGBA(1, 0, color.RGBA{A: 255})

	gray := grayscale(img)
	assert.Len(t, gray, 2)
	assert.Equal(t, uint8(255), gray[0])
	assert.Equal(t, uint8(0), gray[1])
}

func TestPigoDetector_MissingModel(t *testing.T) {
	d := NewPigoDetector("/nonexistent/facefinder")
	_, err := d.load()
	assert.Error(t, err)
}
