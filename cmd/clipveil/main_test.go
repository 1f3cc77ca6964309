// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/clipveil/internal/blur"
	"github.com/ManuGH/clipveil/internal/export"
	"github.com/ManuGH/clipveil/internal/voice"
)

func TestParseBlurFlag(t *testing.T) {
	spec, err := parseBlurFlag("")
	require.NoError(t, err)
	assert.Nil(t, spec)

	spec, err = parseBlurFlag("faces")
	require.NoError(t, err)
	assert.Equal(t, blur.SelectiveRegions, spec.Mode)
	assert.Equal(t, 25, spec.Intensity)

	spec, err = parseBlurFlag("frame:40")
	require.NoError(t, err)
	assert.Equal(t, blur.WholeFrame, spec.Mode)
	assert.Equal(t, 40, spec.Intensity)

	_, err = parseBlurFlag("pixelate")
	assert.Error(t, err)

	_, err = parseBlurFlag("faces:soft")
	assert.Error(t, err)
}

func TestParsePitchFlag(t *testing.T) {
	spec, err := parsePitchFlag("")
	require.NoError(t, err)
	assert.Nil(t, spec)

	spec, err = parsePitchFlag("deep")
	require.NoError(t, err)
	assert.Equal(t, voice.EffectDeep, spec.Effect)

	spec, err = parsePitchFlag("0.85")
	require.NoError(t, err)
	assert.InDelta(t, 0.85, spec.Ratio, 1e-9)

	_, err = parsePitchFlag("-1")
	assert.Error(t, err)

	_, err = parsePitchFlag("loud")
	assert.Error(t, err)
}

func TestParsePosition(t *testing.T) {
	pos, err := parsePosition("bottomRight")
	require.NoError(t, err)
	assert.Equal(t, export.BottomRight, pos)

	_, err = parsePosition("center")
	assert.Error(t, err)
}
