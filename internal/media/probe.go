// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Prober reads container metadata via ffprobe.
type Prober struct {
	BinPath string // ffprobe binary, defaults to "ffprobe"
}

// NewProber creates a Prober for the given ffprobe binary.
func NewProber(binPath string) *Prober {
	if binPath == "" {
		binPath = "ffprobe"
	}
	return &Prober{BinPath: binPath}
}

// Probe extracts stream and format metadata from the file at path and
// returns it as an immutable Asset.
func (p *Prober) Probe(ctx context.Context, path string) (Asset, error) {
	cmd := exec.CommandContext(ctx, p.BinPath,
		"-v", "quiet",
		"-fflags", "+discardcorrupt",
		"-print_format", "json",
		"-show_entries", "stream=codec_type,width,height,r_frame_rate,avg_frame_rate,sample_rate,duration",
		"-show_entries", "format=duration",
		"-show_streams",
		"-show_format",
		path,
	) // #nosec G204

	out, err := cmd.Output()
	if err != nil {
		return Asset{}, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	asset, err := parseProbeOutput(out)
	if err != nil {
		return Asset{}, err
	}
	asset.URI = path
	return asset, nil
}

// parseProbeOutput decodes ffprobe JSON into an Asset. Split out from Probe
// so it can be tested without the binary.
func parseProbeOutput(out []byte) (Asset, error) {
	var probeData struct {
		Streams []struct {
			CodecType    string `json:"codec_type"`
			Width        int    `json:"width"`
			Height       int    `json:"height"`
			RFrameRate   string `json:"r_frame_rate"`
			AvgFrameRate string `json:"avg_frame_rate"`
			SampleRate   string `json:"sample_rate"`
			Duration     string `json:"duration"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}

	if err := json.Unmarshal(out, &probeData); err != nil {
		return Asset{}, fmt.Errorf("ffprobe JSON parse failed: %w", err)
	}

	var asset Asset
	sawVideo := false

	for _, s := range probeData.Streams {
		switch s.CodecType {
		case "video":
			if sawVideo {
				continue
			}
			sawVideo = true
			asset.Width = s.Width
			asset.Height = s.Height
			// avg_frame_rate reflects actual timing better for VFR files;
			// fall back to r_frame_rate when it is missing or zero.
			if fps := parseRate(s.AvgFrameRate); fps > 0 {
				asset.FrameRate = fps
			} else if fps := parseRate(s.RFrameRate); fps > 0 {
				asset.FrameRate = fps
			}
			if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > asset.DurationSeconds {
				asset.DurationSeconds = d
			}
		case "audio":
			if !asset.HasAudio {
				asset.HasAudio = true
				if sr, err := strconv.Atoi(s.SampleRate); err == nil && sr > 0 {
					asset.SampleRate = sr
				}
			}
		}
	}

	if !sawVideo {
		return Asset{}, fmt.Errorf("no video stream found")
	}

	if d, err := strconv.ParseFloat(probeData.Format.Duration, 64); err == nil && d > asset.DurationSeconds {
		asset.DurationSeconds = d
	}

	return asset, nil
}

// parseRate parses an ffprobe rational like "24000/1001" or "24/1".
func parseRate(r string) float64 {
	if r == "" || r == "0/0" {
		return 0
	}
	num, den, found := strings.Cut(r, "/")
	if !found {
		f, _ := strconv.ParseFloat(r, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
