// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package routing implements the deterministic routing driver, the
// router-LLM fallback resolver, candidate-set auditing, and Elephant
// Protocol stall detection (
package routing

import "github.com/teradata-labs/swarm/pkg/swarmtypes"

// aliasTable is the single canonical decision-vocabulary table referenced
// by both the deterministic driver and the router-LLM resolver ( Open
// Question #2 resolved: one table, defined here and imported everywhere
// a raw decision string needs normalizing).
var aliasTable = map[string]swarmtypes.RoutingDecision{
	"advance":  swarmtypes.DecisionAdvance,
	"proceed":  swarmtypes.DecisionAdvance,
	"continue": swarmtypes.DecisionAdvance,
	"next":     swarmtypes.DecisionAdvance,

	"loop":  swarmtypes.DecisionLoop,
	"rerun": swarmtypes.DecisionLoop,
	"retry": swarmtypes.DecisionLoop,
	"repeat": swarmtypes.DecisionLoop,

	"terminate": swarmtypes.DecisionTerminate,
	"blocked":   swarmtypes.DecisionTerminate,
	"stop":      swarmtypes.DecisionTerminate,
	"end":       swarmtypes.DecisionTerminate,
	"exit":      swarmtypes.DecisionTerminate,

	"branch":   swarmtypes.DecisionBranch,
	"route":    swarmtypes.DecisionBranch,
	"switch":   swarmtypes.DecisionBranch,
	"redirect": swarmtypes.DecisionBranch,
}

// ParseDecision maps a raw decision token (as returned by a router-LLM
// session, case-insensitively) onto the canonical vocabulary. Unknown
// tokens default to ADVANCE,).
func ParseDecision(raw string) swarmtypes.RoutingDecision {
	if d, ok := aliasTable[lower(raw)]; ok {
		return d
	}
	return swarmtypes.DecisionAdvance
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
