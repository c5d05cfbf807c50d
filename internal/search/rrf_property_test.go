// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"math"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genChannelResult generates one channel's deduplicated ranked list, drawn
// from a small fixed document alphabet so channels overlap often enough to
// exercise fusion rather than disjoint lists every run.
func genChannelResult(channel string, alphabet []string) gopter.Gen {
	return gen.SliceOf(gen.OneConstOf(toAnySlice(alphabet)...)).Map(func(ids []string) ChannelResult {
		seen := make(map[string]bool, len(ids))
		items := make([]string, 0, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			items = append(items, id)
		}
		return ChannelResult{Channel: channel, Items: items}
	})
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func genChannelSet() gopter.Gen {
	alphabet := []string{"a.go", "b.go", "c.go", "d.go", "e.go"}
	return gopter.CombineGens(
		genChannelResult(channelSymbol, alphabet),
		genChannelResult(channelFilePath, alphabet),
		genChannelResult(channelSemantic, alphabet),
	).Map(func(vals []any) []ChannelResult {
		return []ChannelResult{
			vals[0].(ChannelResult),
			vals[1].(ChannelResult),
			vals[2].(ChannelResult),
		}
	})
}

// TestRRFScoreEqualsSumOfContributions verifies Invariant 1 (spec.md §8):
// for any set of ranked lists and k > 0, a document's fused score equals the
// sum of 1/(k+rank) over every list containing it, and a document absent
// from every list scores 0.
func TestRRFScoreEqualsSumOfContributions(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("fused score equals sum of 1/(k+rank) contributions", prop.ForAll(
		func(channels []ChannelResult, k int) bool {
			if k <= 0 {
				k = DefaultRRFK
			}
			scores, _ := ComputeRRFScores(channels, k)

			want := make(map[string]float64)
			for _, ch := range channels {
				seen := make(map[string]bool, len(ch.Items))
				for i, id := range ch.Items {
					if seen[id] {
						continue
					}
					seen[id] = true
					want[id] += 1.0 / float64(k+i+1)
				}
			}

			if len(scores) != len(want) {
				return false
			}
			for id, w := range want {
				got, ok := scores[id]
				if !ok || math.Abs(got-w) > 1e-9 {
					return false
				}
			}

			// Absent-document score is 0 (the zero value for an unseen key).
			if scores["never-appears.go"] != 0 {
				return false
			}
			return true
		},
		genChannelSet(),
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}

// TestRRFDeterminism verifies Invariant 2: ComputeRRFScores is a pure
// function — repeated calls on the same input yield byte-equal output.
func TestRRFDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("repeated calls yield identical scores and provenance", prop.ForAll(
		func(channels []ChannelResult, k int) bool {
			scores1, prov1 := ComputeRRFScores(channels, k)
			scores2, prov2 := ComputeRRFScores(channels, k)

			if len(scores1) != len(scores2) {
				return false
			}
			for id, s1 := range scores1 {
				if scores2[id] != s1 {
					return false
				}
			}
			if len(prov1) != len(prov2) {
				return false
			}
			for id, p1 := range prov1 {
				p2 := prov2[id]
				if len(p1) != len(p2) {
					return false
				}
				for i := range p1 {
					if p1[i] != p2[i] {
						return false
					}
				}
			}
			return true
		},
		genChannelSet(),
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}

// TestRRFFinalOrderIsScoreThenID verifies the (−score, id) ascending
// ordering the engine applies after ComputeRRFScores, matching Invariant 1's
// ordering clause and Scenario S2's expected order.
func TestRRFFinalOrderIsScoreThenID(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("sorting by (-score, id) is stable and total", prop.ForAll(
		func(channels []ChannelResult, k int) bool {
			scores, _ := ComputeRRFScores(channels, k)

			ids := make([]string, 0, len(scores))
			for id := range scores {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool {
				if scores[ids[i]] != scores[ids[j]] {
					return scores[ids[i]] > scores[ids[j]]
				}
				return ids[i] < ids[j]
			})

			for i := 1; i < len(ids); i++ {
				prev, cur := ids[i-1], ids[i]
				if scores[prev] < scores[cur] {
					return false
				}
				if scores[prev] == scores[cur] && prev > cur {
					return false
				}
			}
			return true
		},
		genChannelSet(),
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}

// TestRRFChannelAbsenceNeverDemotesHigherScorer verifies Invariant 3:
// removing one channel's list from the input never causes a document
// present in a remaining channel to drop past another surviving document
// whose score is strictly greater.
func TestRRFChannelAbsenceNeverDemotesHigherScorer(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("dropping a channel preserves relative order among survivors", prop.ForAll(
		func(channels []ChannelResult, k int, dropIdx int) bool {
			if len(channels) == 0 {
				return true
			}
			dropIdx = dropIdx % len(channels)

			fullScores, _ := ComputeRRFScores(channels, k)

			reduced := make([]ChannelResult, 0, len(channels)-1)
			for i, ch := range channels {
				if i == dropIdx {
					continue
				}
				reduced = append(reduced, ch)
			}
			reducedScores, _ := ComputeRRFScores(reduced, k)

			// Every document still present after the drop must have a score
			// no greater than before (removing a contributing list can only
			// lower or preserve a score, never raise it).
			for id, rs := range reducedScores {
				if rs > fullScores[id]+1e-9 {
					return false
				}
			}

			// For any two documents that both survive the drop, their
			// relative order (by score) is preserved unless the dropped
			// channel was the sole source of the difference between them —
			// so we only assert the invariant for pairs whose full-score
			// gap exceeds any single channel's maximum possible
			// contribution (1/(k+1)), which the dropped channel alone could
			// never have produced.
			kk := k
			if kk <= 0 {
				kk = DefaultRRFK
			}
			maxSingleContribution := 1.0 / float64(kk+1)

			ids := make([]string, 0, len(reducedScores))
			for id := range reducedScores {
				ids = append(ids, id)
			}
			for i := 0; i < len(ids); i++ {
				for j := 0; j < len(ids); j++ {
					if i == j {
						continue
					}
					a, b := ids[i], ids[j]
					if fullScores[a]-fullScores[b] > maxSingleContribution {
						if reducedScores[a] < reducedScores[b] {
							return false
						}
					}
				}
			}
			return true
		},
		genChannelSet(),
		gen.IntRange(1, 200),
		gen.IntRange(0, 2),
	))

	properties.TestingRun(t)
}
