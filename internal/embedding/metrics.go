// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level Prometheus metrics for EmbeddingManager cache behavior,
// matching services/trace/agent/llm/observability.go's
// promauto.NewCounterVec-per-package pattern.
var (
	// cacheLookupsTotal counts content-addressed cache lookups by outcome.
	//
	// Labels:
	//   - outcome: "hit", "miss", "dimension_mismatch"
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentd",
			Subsystem: "embedding",
			Name:      "cache_lookups_total",
			Help:      "Total embedding cache lookups by outcome.",
		},
		[]string{"outcome"},
	)
)
