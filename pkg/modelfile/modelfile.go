// Package modelfile loads a domain.Model from its JSON wire format
// (§6). It is an external collaborator, not part of the engine core:
// the core only ever sees an already-built *domain.Model.
package modelfile

import (
	"encoding/json"

	"github.com/flowkit/flowcore/internal/acterr"
	"github.com/flowkit/flowcore/internal/domain"
)

// wireModel mirrors domain.Model's shape for JSON decoding; kept
// separate so domain.Model stays free of `json` tags mixed in with its
// runtime-only fields (Bytes, timestamps).
type wireModel struct {
	ID      string                    `json:"id"`
	Name    string                    `json:"name"`
	Desc    string                    `json:"desc"`
	Tag     string                    `json:"tag"`
	Env     map[string]any            `json:"env"`
	Inputs  map[string]any            `json:"inputs"`
	Outputs map[string]any            `json:"outputs"`
	Steps   []*domain.Step            `json:"steps"`
	Setup   []*domain.Act             `json:"setup"`
	On      []*domain.EventTrigger    `json:"on"`
}

// Parse decodes raw JSON bytes into a domain.Model, keeping the
// original bytes for audit/replay (§3 "Model is immutable once
// deployed").
func Parse(raw []byte) (*domain.Model, error) {
	var w wireModel
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, acterr.Convert("parse model json: %v", err)
	}
	m := &domain.Model{
		ID: w.ID, Name: w.Name, Desc: w.Desc, Tag: w.Tag,
		Env: w.Env, Inputs: w.Inputs, Outputs: w.Outputs,
		Steps: w.Steps, Setup: w.Setup, On: w.On,
		Bytes: append([]byte(nil), raw...),
	}
	if m.ID == "" {
		m.ID = domain.NewID()
	}
	return m, nil
}
