// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package daemon

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"

	"github.com/teradata-labs/swarm/internal/pubsub"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// EventBroker streams a run's journaled events to any client subscribed
// to "/events?stream=<run_id>", one r3labs/sse stream per run, created
// lazily on first publish.
type EventBroker struct {
	server *sse.Server
	logger *zap.Logger

	mu      sync.Mutex
	streams map[swarmtypes.RunID]bool
}

// NewEventBroker builds an EventBroker backed by a fresh r3labs/sse
// server. AutoReplay is left off: a client reconnecting after a gap is
// expected to catch up via "swarmctl tail", not SSE replay.
func NewEventBroker(logger *zap.Logger) *EventBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := sse.New()
	server.AutoReplay = false
	return &EventBroker{server: server, logger: logger, streams: make(map[swarmtypes.RunID]bool)}
}

// Publish sends ev to runID's stream, creating the stream on first use.
func (b *EventBroker) Publish(runID swarmtypes.RunID, ev swarmtypes.RunEvent) {
	b.mu.Lock()
	if !b.streams[runID] {
		b.server.CreateStream(string(runID))
		b.streams[runID] = true
	}
	b.mu.Unlock()

	data, err := json.Marshal(pubsub.NewCreatedEvent(ev))
	if err != nil {
		b.logger.Warn("daemon: marshal run event for sse failed", zap.Error(err))
		return
	}
	b.server.Publish(string(runID), &sse.Event{Event: []byte(string(ev.Kind)), Data: data})
}

// ServeHTTP dispatches to the underlying sse.Server, which reads the
// target stream from the "stream" query parameter.
func (b *EventBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.server.ServeHTTP(w, r)
}
