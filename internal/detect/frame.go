// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package detect

import (
	"context"
	"fmt"
	"image"

	vidio "github.com/AlexEidt/Vidio"
)

// RepresentativeFrame decodes the first readable frame of the clip into an
// RGBA image. One frame is enough: detection runs once per clip, not per frame.
func RepresentativeFrame(ctx context.Context, path string) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	video, err := vidio.NewVideo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video for frame extraction: %w", err)
	}
	defer video.Close()

	img := image.NewRGBA(image.Rect(0, 0, video.Width(), video.Height()))
	video.SetFrameBuffer(img.Pix)

	if !video.Read() {
		return nil, fmt.Errorf("no decodable frame in %s", path)
	}

	return img, nil
}
