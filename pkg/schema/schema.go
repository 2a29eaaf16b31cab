// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package schema validates HandoffEnvelope and RoutingSignal values
// against their JSON Schemas so strict-mode callers can reject malformed
// LLM output instead of persisting it (
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

const envelopeSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["step_id", "flow_key", "run_id", "status", "summary", "_envelope_source"],
  "properties": {
    "status": {"enum": ["VERIFIED", "UNVERIFIED", "PARTIAL", "BLOCKED"]},
    "summary": {"type": "string", "maxLength": 4096},
    "_envelope_source": {"enum": ["lifecycle", "orchestrator_fallback", "minimal_envelope"]}
  }
}`

const routingSignalSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["decision", "reason", "confidence", "routing_source"],
  "properties": {
    "decision": {"enum": ["advance", "loop", "terminate", "branch"]},
    "confidence": {"type": "number", "minimum": 0.0, "maximum": 1.0}
  }
}`

var (
	envelopeSchema      = gojsonschema.NewStringLoader(envelopeSchemaJSON)
	routingSignalSchema = gojsonschema.NewStringLoader(routingSignalSchemaJSON)
)

// ValidateEnvelope returns a human-readable violation per schema failure;
// an empty slice means the envelope is schema-valid.
func ValidateEnvelope(e *swarmtypes.HandoffEnvelope) []string {
	return validateAgainst(envelopeSchema, e)
}

// ValidateRoutingSignal returns a human-readable violation per schema
// failure for a routing signal.
func ValidateRoutingSignal(s *swarmtypes.RoutingSignal) []string {
	return validateAgainst(routingSignalSchema, s)
}

func validateAgainst(schemaLoader gojsonschema.JSONLoader, v any) []string {
	raw, err := json.Marshal(v)
	if err != nil {
		return []string{fmt.Sprintf("marshal for validation: %v", err)}
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return []string{fmt.Sprintf("schema validation error: %v", err)}
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return violations
}
