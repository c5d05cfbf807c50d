// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package indexmanager

// Status is the IndexManager's status state machine: idle -> indexing ->
// {indexed, indexed_no_embedding, error}, per spec.md §4.8.
type Status string

const (
	StatusIdle               Status = "idle"
	StatusIndexing           Status = "indexing"
	StatusIndexed            Status = "indexed"
	StatusIndexedNoEmbedding Status = "indexed_no_embedding"
	StatusError              Status = "error"
)

// LSPEnrichment is the parallel sub-status spec.md §4.8 names: preserved
// across index-status emissions so an enrichment in progress is never
// clobbered by an unrelated indexing-status update. The LSP enrichment
// engine itself is an external collaborator (spec.md's Non-goals exclude
// it beyond this status contract); SetLSPEnrichment is the hook a future
// LSP integration calls.
type LSPEnrichment string

const (
	LSPNone      LSPEnrichment = "none"
	LSPEnriching LSPEnrichment = "enriching"
	LSPEnriched  LSPEnrichment = "enriched"
)

// IndexStatusEvent is the externally visible status spec.md §6 names.
type IndexStatusEvent struct {
	ProjectPath           string
	Status                Status
	IndexedFiles          int
	TotalFiles            int
	TotalSymbols          int
	EmbeddingChunks       int
	EmbeddingProviderName string
	LSPEnrichment         LSPEnrichment
	ErrorMessage          string
}
