// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and jsonschema-validates the process configuration
// for netserver/netclient binaries, grounded on the teacher's
// internal/config (Keys global plus Init/Validate) but trimmed to this
// domain's settings.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mattlee78/netstate/internal/prediction"
)

// Keys holds the process-wide configuration after Load.
var Keys = ProgramConfig{
	ListenAddr:      ":9876",
	AdminHTTPAddr:   ":9877",
	FramesPerSecond: 20,
	TimeoutSeconds:  30,
	Prediction: PredictionConfig{
		FrameTickLength:       100,
		Correction:            0.75,
		Smoothing:             0.25,
		MaxExtrapolationTicks: 1000,
	},
}

// Load reads path, validates it against Schema, and decodes it into Keys.
// A missing file is not an error: Keys keeps its defaults.
func Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := Validate(raw); err != nil {
		return fmt.Errorf("config: validate %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

// Validate checks raw against Schema.
func Validate(raw json.RawMessage) error {
	sch, err := jsonschema.CompileString("schema.json", Schema)
	if err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// PredictionConstants converts PredictionConfig to prediction.Constants.
func (p PredictionConfig) PredictionConstants() prediction.Constants {
	return prediction.Constants{
		FrameTickLength:       p.FrameTickLength,
		Correction:            p.Correction,
		Smoothing:             p.Smoothing,
		PredictionBias:        p.PredictionBias,
		MaxExtrapolationTicks: p.MaxExtrapolationTicks,
	}
}
