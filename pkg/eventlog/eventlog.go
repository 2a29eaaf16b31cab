// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package eventlog implements the per-run append-only event journal
// (events.jsonl): one JSON object per line, flushed and fsynced
// before the write lock is released, so that a crash never leaves a
// partial line visible to a concurrent reader.
package eventlog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// Writer appends RunEvents to one run's events.jsonl. A single Writer
// instance must own all appends for a run; the mutex it carries is the
// "process-local write lock" called out.
type Writer struct {
	path string
	mu   sync.Mutex

	lastSeq int64
	seen    map[string]bool
	logger  *zap.Logger
}

// NewWriter opens (or creates) path for appending and recovers the last
// seq and event_id set already present on disk, so seq stays monotonic
// and duplicate event_ids are rejected across process restarts.
func NewWriter(path string, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Writer{path: path, seen: make(map[string]bool), logger: logger}

	events, _, err := ReadAll(path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: recovering state from %s: %w", path, err)
	}
	for _, e := range events {
		w.seen[e.EventID] = true
		if e.Seq > w.lastSeq {
			w.lastSeq = e.Seq
		}
	}
	return w, nil
}

// Append assigns the next seq, stamps ts if zero, rejects duplicate
// event_ids, serializes the event as one line, and fsyncs before
// returning (Invariant 2).
func (w *Writer) Append(e swarmtypes.RunEvent) (swarmtypes.RunEvent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e.EventID == "" {
		return e, fmt.Errorf("eventlog: event_id is required")
	}
	if w.seen[e.EventID] {
		return e, fmt.Errorf("eventlog: duplicate event_id %q", e.EventID)
	}

	w.lastSeq++
	e.Seq = w.lastSeq
	if e.TS.IsZero() {
		e.TS = time.Now().UTC()
	}

	line, err := json.Marshal(e)
	if err != nil {
		w.lastSeq--
		return e, fmt.Errorf("eventlog: marshal event: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		w.lastSeq--
		return e, fmt.Errorf("eventlog: open %s: %w", w.path, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		w.lastSeq--
		return e, fmt.Errorf("eventlog: write event: %w", err)
	}
	if err := f.Sync(); err != nil {
		w.lastSeq--
		return e, fmt.Errorf("eventlog: sync event: %w", err)
	}

	w.seen[e.EventID] = true
	w.logger.Debug("event appended",
		zap.String("run_id", string(e.RunID)),
		zap.String("kind", string(e.Kind)),
		zap.Int64("seq", e.Seq))
	return e, nil
}

// ReadAll reads every complete line in path and returns the parsed
// events plus the byte offset at which the last complete line ends (used
// to seed a Writer's recovered state and a Tailer's initial offset).
func ReadAll(path string) ([]swarmtypes.RunEvent, int64, error) {
	return ReadFromOffset(path, 0)
}

// ReadFromOffset reads every complete line starting at byte offset
// "from" and returns the parsed events plus the new offset, which points
// just past the last complete ("\n"-terminated) line read. A trailing
// partial line (no final newline yet) is left unread and unconsumed, so
// the caller's offset never advances past it ( crash-safety: a
// tailer must never observe a partially-written line).
func ReadFromOffset(path string, from int64) ([]swarmtypes.RunEvent, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, from, nil
		}
		return nil, from, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, from, err
	}
	if info.Size() <= from {
		return nil, from, nil
	}

	if _, err := f.Seek(from, 0); err != nil {
		return nil, from, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, from, err
	}

	var events []swarmtypes.RunEvent
	offset := from
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] != '\n' {
			continue
		}
		line := data[start:i]
		start = i + 1
		if len(line) == 0 {
			offset = from + int64(start)
			continue
		}
		var e swarmtypes.RunEvent
		if err := json.Unmarshal(line, &e); err != nil {
			// malformed lines are skipped without logging, never fatal
			offset = from + int64(start)
			continue
		}
		events = append(events, e)
		offset = from + int64(start)
	}
	return events, offset, nil
}
