// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package stepengine

import (
	"fmt"

	"github.com/teradata-labs/swarm/pkg/handoff"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// Hydrator builds a ContextPack from previously committed envelopes, the
// preferred hydration strategy.
type Hydrator struct {
	handoffIO *handoff.IO
}

// NewHydrator builds a Hydrator reading envelopes through handoffIO.
func NewHydrator(handoffIO *handoff.IO) *Hydrator {
	return &Hydrator{handoffIO: handoffIO}
}

// Hydrate reads the committed envelopes of every history entry available
// to sc and assembles a ContextPack. It never errors: a read failure for
// any one step is dropped with a note, and total failure degrades to an
// empty pack (the caller then falls back to BuildLegacyPrompt).
func (h *Hydrator) Hydrate(sc *StepContext) *swarmtypes.ContextPack {
	pack := &swarmtypes.ContextPack{
		StepID:            sc.Step.ID,
		UpstreamArtifacts: make(map[string]string),
	}

	for _, entry := range sc.History {
		env, err := h.handoffIO.Read(sc.RunID, sc.FlowKey, entry.StepID)
		if err != nil || env == nil {
			pack.Notes = append(pack.Notes, fmt.Sprintf("could not hydrate step %q: %v", entry.StepID, err))
			continue
		}
		pack.PreviousEnvelopes = append(pack.PreviousEnvelopes, env)
		for name, path := range env.Artifacts {
			pack.UpstreamArtifacts[name] = path
		}
	}

	return pack
}
