// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package search is the HybridSearchEngine: Symbol/FilePath/Semantic
// channels fused by Reciprocal Rank Fusion, per spec.md §4.6. Grounded on
// services/trace/agent/routing/bm25.go's ranking-function style (a pure,
// side-effect-free scoring function consumed by a stateful caller) —
// generalized from BM25 itself (the FTS5 virtual tables already rank with
// BM25) to the fusion layer that combines BM25-ranked and cosine-ranked
// channels.
package search

// DefaultRRFK is the default k constant in the RRF formula
// 1/(k+rank), per spec.md §4.6.
const DefaultRRFK = 60

// DefaultChannelMaxResults caps each channel's contribution before fusion.
const DefaultChannelMaxResults = 50

// DefaultMaxResults caps the final fused, truncated result list.
const DefaultMaxResults = 20

// Provenance records one channel's contribution to a document's score:
// the 1-based rank the document held in that channel's list, and the
// 1/(k+rank) contribution that rank produced.
type Provenance struct {
	Channel      string
	Rank         int
	Contribution float64
}

// ChannelResult is one channel's ranked, best-first list of document keys,
// already deduplicated and capped at its channel's max_results.
type ChannelResult struct {
	Channel string
	Items   []string
}

// ComputeRRFScores is the standalone pure function spec.md §4.6 names
// (compute_rrf_scores): given ranked_lists and k, returns each document's
// fused score and the per-channel provenance entries that sum to it.
//
// Only a document's first occurrence in a channel's list counts — a
// channel is expected to already be deduplicated, but ComputeRRFScores
// tolerates duplicates defensively rather than double-counting them.
func ComputeRRFScores(channels []ChannelResult, k int) (map[string]float64, map[string][]Provenance) {
	if k <= 0 {
		k = DefaultRRFK
	}

	scores := make(map[string]float64)
	provenance := make(map[string][]Provenance)

	for _, ch := range channels {
		seen := make(map[string]bool, len(ch.Items))
		for i, id := range ch.Items {
			if seen[id] {
				continue
			}
			seen[id] = true

			rank := i + 1
			contribution := 1.0 / float64(k+rank)
			scores[id] += contribution
			provenance[id] = append(provenance[id], Provenance{
				Channel:      ch.Channel,
				Rank:         rank,
				Contribution: contribution,
			})
		}
	}

	return scores, provenance
}
