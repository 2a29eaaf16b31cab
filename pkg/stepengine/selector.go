// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package stepengine

import (
	"fmt"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// Selector is the default EngineSelector: a fixed default engine plus an
// optional set of named engines a step's engine_profile.Model can select
// by exact match, falling back to the default when no name matches.
type Selector struct {
	def    Engine
	byName map[string]Engine
}

// NewSelector builds a Selector defaulting to def.
func NewSelector(def Engine) *Selector {
	return &Selector{def: def, byName: make(map[string]Engine)}
}

// Register adds a named engine, selectable by a step's
// engine_profile.Model value.
func (s *Selector) Register(name string, e Engine) *Selector {
	s.byName[name] = e
	return s
}

// Select implements orchestrator.EngineSelector.
func (s *Selector) Select(step swarmtypes.StepDefinition) (Engine, error) {
	if s.def == nil {
		return nil, fmt.Errorf("stepengine: selector has no default engine")
	}
	if step.EngineProfile != nil && step.EngineProfile.Model != "" {
		if e, ok := s.byName[step.EngineProfile.Model]; ok {
			return e, nil
		}
	}
	return s.def, nil
}
