// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package stepengine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// BudgetConfig configures legacy history-priority prompt assembly.
type BudgetConfig struct {
	ContextBudgetChars int
	RecentMaxChars     int
	OlderMaxChars      int
}

// DefaultBudgetConfig mirrors the defaults implied by 's prose: a
// few thousand characters of context, with the most recent/critical item
// getting a larger slice than older ones.
var DefaultBudgetConfig = BudgetConfig{
	ContextBudgetChars: 12000,
	RecentMaxChars:     4000,
	OlderMaxChars:      1500,
}

// historyItem is one candidate admitted into legacy prompt assembly.
type historyItem struct {
	entry    swarmtypes.StepHistoryEntry
	priority swarmtypes.PriorityClass
	recency  int // 0 = most recent
}

// classify assigns a PriorityClass to a history entry. The most recent
// step is always CRITICAL; VERIFIED/BLOCKED outcomes are HIGH (they
// determine routing); everything else is MEDIUM, and anything beyond the
// five most recent steps drops to LOW.
func classify(entries []swarmtypes.StepHistoryEntry) []historyItem {
	items := make([]historyItem, len(entries))
	n := len(entries)
	for i, e := range entries {
		recency := n - 1 - i // 0 = most recent (last in slice)
		var p swarmtypes.PriorityClass
		switch {
		case recency == 0:
			p = swarmtypes.PriorityCritical
		case e.Status == string(swarmtypes.StatusVerified) || e.Status == string(swarmtypes.StatusBlocked):
			p = swarmtypes.PriorityHigh
		case recency < 5:
			p = swarmtypes.PriorityMedium
		default:
			p = swarmtypes.PriorityLow
		}
		items[i] = historyItem{entry: e, priority: p, recency: recency}
	}
	return items
}

// BuildLegacyPrompt assembles a prompt body from run history using
// priority-class admission: items sorted by priority descending, ties
// broken by recency ascending; each admitted item truncated by its class
// (CRITICAL/most-recent gets RecentMaxChars, everything else
// OlderMaxChars); admission stops once ContextBudgetChars would be
// exceeded, and a "[CONTEXT_TRUNCATED]" note is prepended if any items
// were dropped.
func BuildLegacyPrompt(cfg BudgetConfig, entries []swarmtypes.StepHistoryEntry) (string, *swarmtypes.TruncationInfo) {
	items := classify(entries)

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].priority != items[j].priority {
			return items[i].priority > items[j].priority
		}
		return items[i].recency < items[j].recency
	})

	var admitted []historyItem
	used := 0
	included := map[string]int{"CRITICAL": 0, "HIGH": 0, "MEDIUM": 0, "LOW": 0}
	dropped := 0

	for _, it := range items {
		maxChars := cfg.OlderMaxChars
		if it.priority == swarmtypes.PriorityCritical {
			maxChars = cfg.RecentMaxChars
		}
		text := truncate(it.entry.Summary, maxChars)
		cost := estimateTokens(text)*4 + len(it.entry.StepID) + 32
		if used+cost > cfg.ContextBudgetChars {
			dropped = len(items) - len(admitted)
			break
		}
		used += cost
		admitted = append(admitted, it)
		included[priorityName(it.priority)]++
	}

	// restore chronological order for the final prompt
	sort.SliceStable(admitted, func(i, j int) bool { return admitted[i].recency > admitted[j].recency })

	var b strings.Builder
	if dropped > 0 {
		fmt.Fprintf(&b, "[CONTEXT_TRUNCATED] %d earlier step(s) omitted to fit the context budget.\n\n", dropped)
	}
	for _, it := range admitted {
		fmt.Fprintf(&b, "### %s (%s)\n%s\n\n", it.entry.StepID, it.entry.Status, truncate(it.entry.Summary, maxCharsFor(cfg, it.priority)))
	}

	info := &swarmtypes.TruncationInfo{
		Truncated:          dropped > 0,
		IncludedByPriority: included,
		DroppedCount:       dropped,
	}
	return b.String(), info
}

func maxCharsFor(cfg BudgetConfig, p swarmtypes.PriorityClass) int {
	if p == swarmtypes.PriorityCritical {
		return cfg.RecentMaxChars
	}
	return cfg.OlderMaxChars
}

func priorityName(p swarmtypes.PriorityClass) string {
	switch p {
	case swarmtypes.PriorityCritical:
		return "CRITICAL"
	case swarmtypes.PriorityHigh:
		return "HIGH"
	case swarmtypes.PriorityMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
