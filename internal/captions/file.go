// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package captions

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/renameio/v2"
)

// LoadFile reads caption segments from a timed-caption file. Both the plain
// sidecar format (HH:MM:SS.mmm) and SubRip (HH:MM:SS,mmm) are accepted; the
// result is sanitized.
func LoadFile(path string) ([]Segment, error) {
	f, err := os.Open(path) // #nosec G304 -- caller-supplied caption path
	if err != nil {
		return nil, fmt.Errorf("failed to open caption file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var segments []Segment
	var current *Segment

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			if current != nil {
				segments = append(segments, *current)
				current = nil
			}
		case strings.Contains(line, "-->"):
			start, end, err := parseTimingLine(line)
			if err != nil {
				// Defensive: skip a malformed block, keep the rest.
				current = nil
				continue
			}
			current = &Segment{Start: start, End: end, Confidence: 1}
		case current != nil:
			if current.Text != "" {
				current.Text += " "
			}
			current.Text += line
		default:
			// index line or header, ignored
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read caption file: %w", err)
	}
	if current != nil {
		segments = append(segments, *current)
	}

	return Sanitize(segments), nil
}

func parseTimingLine(line string) (float64, float64, error) {
	startRaw, endRaw, found := strings.Cut(line, "-->")
	if !found {
		return 0, 0, fmt.Errorf("not a timing line: %q", line)
	}
	// SubRip may append position hints after the end timestamp.
	endRaw = strings.TrimSpace(endRaw)
	if i := strings.IndexByte(endRaw, ' '); i > 0 {
		endRaw = endRaw[:i]
	}

	start, err := ParseTimestamp(startRaw)
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseTimestamp(endRaw)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// WriteSidecar atomically writes the plain timed-caption file next to the
// exported video for accessibility reuse. Segments are sanitized first.
func WriteSidecar(path string, segments []Segment) error {
	var b strings.Builder
	for i, s := range Sanitize(segments) {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, FormatTimestamp(s.Start), FormatTimestamp(s.End), s.Text)
	}
	return renameio.WriteFile(path, []byte(b.String()), 0o644)
}

// WriteSRT writes a SubRip file for the ffmpeg subtitles filter to burn in.
// Unlike the sidecar this is a job-private intermediate, so a plain write
// suffices.
func WriteSRT(path string, segments []Segment) error {
	var b strings.Builder
	for i, s := range Sanitize(segments) {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, formatSRTTimestamp(s.Start), formatSRTTimestamp(s.End), s.Text)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
