// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ffmpegx

import "strings"

// EscapeFilterValue escapes a value for use inside an ffmpeg filtergraph
// option (e.g. the filename of the subtitles filter). The filtergraph parser
// treats backslash, quote, colon, and the graph separators specially.
func EscapeFilterValue(v string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`[`, `\[`,
		`]`, `\]`,
		`,`, `\,`,
		`;`, `\;`,
	)
	return r.Replace(v)
}
