// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package captions

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatTimestamp renders seconds as HH:MM:SS.mmm (the sidecar format).
func FormatTimestamp(seconds float64) string {
	return formatTimestamp(seconds, '.')
}

// formatSRTTimestamp renders seconds as HH:MM:SS,mmm (the SubRip format the
// ffmpeg subtitles filter consumes).
func formatSRTTimestamp(seconds float64) string {
	return formatTimestamp(seconds, ',')
}

func formatTimestamp(seconds float64, decimal rune) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMs := int64(math.Round(seconds * 1000))
	h := totalMs / 3600000
	m := (totalMs % 3600000) / 60000
	s := (totalMs % 60000) / 1000
	ms := totalMs % 1000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, decimal, ms)
}

// ParseTimestamp accepts HH:MM:SS.mmm or HH:MM:SS,mmm and returns seconds.
func ParseTimestamp(ts string) (float64, error) {
	ts = strings.TrimSpace(ts)
	normalized := strings.Replace(ts, ",", ".", 1)

	parts := strings.Split(normalized, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed timestamp: %q", ts)
	}

	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	s, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil || h < 0 || m < 0 || s < 0 {
		return 0, fmt.Errorf("malformed timestamp: %q", ts)
	}

	return float64(h)*3600 + float64(m)*60 + s, nil
}
