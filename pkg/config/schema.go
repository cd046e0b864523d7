// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

// ProgramConfig is the on-disk JSON shape for a netserver or netclient
// process, the Go-native replacement for the original's compiled-in
// g_Smoothing/g_Correction/g_LerpThresholdTicks constants (spec §4.4's
// closing paragraph: "established at start and not changed during a
// session").
type ProgramConfig struct {
	ListenAddr     string `json:"listen-addr"`
	AdminHTTPAddr  string `json:"admin-http-addr"`
	FramesPerSecond int    `json:"frames-per-second"`
	TimeoutSeconds float64 `json:"timeout-seconds"`

	SessionSecret string `json:"session-secret"`

	Prediction PredictionConfig `json:"prediction"`

	Bus *BusConfig `json:"bus,omitempty"`
}

// PredictionConfig mirrors prediction.Constants for JSON configurability.
type PredictionConfig struct {
	FrameTickLength       int64   `json:"frame-tick-length"`
	Correction            float32 `json:"correction"`
	Smoothing             float32 `json:"smoothing"`
	PredictionBias        float32 `json:"prediction-bias"`
	MaxExtrapolationTicks int64   `json:"max-extrapolation-ticks"`
}

// BusConfig mirrors adminbus.Config for JSON configurability. A nil Bus
// in ProgramConfig means the process runs without cross-process presence
// relay.
type BusConfig struct {
	Address       string `json:"address"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	CredsFilePath string `json:"creds-file-path"`
}

const Schema = `
{
  "type": "object",
  "properties": {
    "listen-addr": {
      "description": "UDP address the server listens on (for example 'localhost:9876'). Ignored by netclient.",
      "type": "string"
    },
    "admin-http-addr": {
      "description": "HTTP address for /healthz, /status and /metrics. Empty disables the admin server.",
      "type": "string"
    },
    "frames-per-second": {
      "description": "Simulation tick rate.",
      "type": "integer",
      "minimum": 1
    },
    "timeout-seconds": {
      "description": "Seconds of silence before a peer is dropped. 0 disables the timeout.",
      "type": "number",
      "minimum": 0
    },
    "session-secret": {
      "description": "HMAC secret for the server's session-claim issuer; the handshake itself does not issue or check claims.",
      "type": "string"
    },
    "prediction": {
      "description": "Process-wide prediction/smoothing constants (spec section 4.4).",
      "type": "object",
      "properties": {
        "frame-tick-length": { "type": "integer", "minimum": 1 },
        "correction": { "type": "number" },
        "smoothing": { "type": "number" },
        "prediction-bias": { "type": "number" },
        "max-extrapolation-ticks": { "type": "integer", "minimum": 0 }
      }
    },
    "bus": {
      "description": "Optional NATS connection for cross-process presence/chat relay.",
      "type": "object",
      "properties": {
        "address": { "type": "string" },
        "username": { "type": "string" },
        "password": { "type": "string" },
        "creds-file-path": { "type": "string" }
      },
      "required": ["address"]
    }
  },
  "required": ["frames-per-second"]
}`
