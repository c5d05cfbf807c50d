// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler exposes the default promauto registry (the one every
// promauto.New*Vec call in this module registers against) as a
// /metrics-style http.Handler for cmd/agentd to mount.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Cross-cutting metrics that don't belong to a single component: session
// lifecycle and sub-agent fan-out, both owned by internal/orchestrator but
// shaped like the teacher's router escalation counters
// (services/trace/agent/routing/escalating_router.go) rather than any one
// provider/channel.
var (
	// SessionsTotal counts completed RunSession calls by terminal status.
	//
	// Labels:
	//   - status: "completed", "failed", "cancelled"
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentd",
		Subsystem: "orchestrator",
		Name:      "sessions_total",
		Help:      "Total orchestrator sessions by terminal status.",
	}, []string{"status"})

	// SubAgentSpawnsTotal counts Task-tool delegations by subagent type and
	// outcome.
	//
	// Labels:
	//   - subagent_type: "Explore", "Plan", "GeneralPurpose", "Bash"
	//   - outcome: "success", "error", "depth_exceeded"
	SubAgentSpawnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentd",
		Subsystem: "orchestrator",
		Name:      "subagent_spawns_total",
		Help:      "Total sub-agent Task delegations by type and outcome.",
	}, []string{"subagent_type", "outcome"})

	// LoopIterationDuration measures one completion-call-plus-tool-dispatch
	// iteration of the orchestrator's inner loop.
	LoopIterationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "agentd",
		Subsystem: "orchestrator",
		Name:      "loop_iteration_duration_seconds",
		Help:      "Duration of one orchestrator completion+tool-dispatch iteration.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)
