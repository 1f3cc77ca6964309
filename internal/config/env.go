// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/ManuGH/clipveil/internal/log"
)

// Environment variable names. CLIPVEIL_LOG_LEVEL is read by the log package
// as well so it works before configuration is loaded.
const (
	EnvFFmpegBin     = "CLIPVEIL_FFMPEG_BIN"
	EnvFFprobeBin    = "CLIPVEIL_FFPROBE_BIN"
	EnvCascadePath   = "CLIPVEIL_CASCADE_PATH"
	EnvWatermarkPath = "CLIPVEIL_WATERMARK_PATH"
	EnvWorkDir       = "CLIPVEIL_WORK_DIR"
	EnvMaxConcurrent = "CLIPVEIL_MAX_CONCURRENT"
	EnvKillGrace     = "CLIPVEIL_KILL_GRACE"
	EnvStartTimeout  = "CLIPVEIL_START_TIMEOUT"
	EnvStallTimeout  = "CLIPVEIL_STALL_TIMEOUT"
	EnvLogLevel      = "CLIPVEIL_LOG_LEVEL"
)

func applyEnv(cfg *Config) {
	envString(EnvFFmpegBin, &cfg.FFmpegBin)
	envString(EnvFFprobeBin, &cfg.FFprobeBin)
	envString(EnvCascadePath, &cfg.CascadePath)
	envString(EnvWatermarkPath, &cfg.WatermarkPath)
	envString(EnvWorkDir, &cfg.WorkDir)
	envInt(EnvMaxConcurrent, &cfg.MaxConcurrent)
	envDuration(EnvKillGrace, &cfg.KillGrace)
	envDuration(EnvStartTimeout, &cfg.StartTimeout)
	envDuration(EnvStallTimeout, &cfg.StallTimeout)
	envString(EnvLogLevel, &cfg.LogLevel)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
		logOverride(key, v)
	}
}

func envInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		logInvalid(key, v, err)
		return
	}
	*dst = i
	logOverride(key, v)
}

func envDuration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logInvalid(key, v, err)
		return
	}
	*dst = d
	logOverride(key, v)
}

func logOverride(key, value string) {
	logger := log.WithComponent("config")
	logger.Debug().
		Str("key", key).
		Str("value", value).
		Str("source", "environment").
		Msg("using environment variable")
}

func logInvalid(key, value string, err error) {
	logger := log.WithComponent("config")
	logger.Warn().
		Str("key", key).
		Str("value", value).
		Err(err).
		Msg("ignoring invalid environment variable")
}
