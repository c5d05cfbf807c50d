// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/aleutian-core/internal/annindex"
	"github.com/AleutianAI/aleutian-core/internal/embedding"
	"github.com/AleutianAI/aleutian-core/internal/store"
)

// searchTracer is the package-level OTel tracer, matching the
// otel.Tracer("<dotted.name>") idiom escalating_router.go uses for one
// span per channel call (spec.md §4.6).
var searchTracer = otel.Tracer("aleutian.search")

const (
	channelSymbol   = "symbol"
	channelFilePath = "file_path"
	channelSemantic = "semantic"
)

// Result is one fused, ranked hit after RRF.
type Result struct {
	FilePath           string
	SymbolName         string
	ChunkText          string
	SemanticSimilarity *float32
	Score              float64
	Provenance         []Provenance
}

// Outcome is the full result of one Search call, including the
// degradation-reporting fields spec.md §4.6 requires so failure modes
// stay observable rather than silent.
type Outcome struct {
	Results                  []Result
	SemanticDegraded         bool
	SemanticError            string
	ActiveChannels           []string
	EmbeddingProviderDisplay string
	EmbeddingDimension       int
	HnswUsed                 bool
	HnswVectorCount          int
}

// Options configures one Search call; zero values fall back to spec.md
// §4.6's defaults.
type Options struct {
	ProjectPath       string
	ChannelMaxResults int
	MaxResults        int
	RRFK              int
}

func (o Options) withDefaults() Options {
	if o.ChannelMaxResults <= 0 {
		o.ChannelMaxResults = DefaultChannelMaxResults
	}
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.RRFK <= 0 {
		o.RRFK = DefaultRRFK
	}
	return o
}

// Engine is the HybridSearchEngine for one project. AnnIndex and
// EmbeddingManager are optional: a nil EmbeddingManager skips the
// semantic channel entirely; a nil or not-ready AnnIndex falls the
// semantic channel back to VectorStore.SemanticSearch.
type Engine struct {
	store    store.VectorStore
	ann      *annindex.Index
	embedder *embedding.Manager
	logger   *slog.Logger
}

// New constructs an Engine. ann and embedder may be nil.
func New(vs store.VectorStore, ann *annindex.Index, embedder *embedding.Manager, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: vs, ann: ann, embedder: embedder, logger: logger}
}

// Search runs all applicable channels, fuses them with RRF, and returns a
// deterministically ordered, provenance-annotated result list.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (Outcome, error) {
	ctx, span := searchTracer.Start(ctx, "search.Engine.Search",
		trace.WithAttributes(
			attribute.String("project_path", opts.ProjectPath),
			attribute.Int("query_len", len(query)),
		),
	)
	defer span.End()

	opts = opts.withDefaults()

	var channels []ChannelResult
	metadata := make(map[string]Result) // keyed by file_path; later channels fill only fields earlier ones left empty
	var outcome Outcome

	symbolItems, symbolMeta := e.symbolChannel(ctx, query, opts)
	if symbolItems != nil {
		channels = append(channels, ChannelResult{Channel: channelSymbol, Items: symbolItems})
		outcome.ActiveChannels = append(outcome.ActiveChannels, channelSymbol)
		mergeMetadata(metadata, symbolMeta)
	}

	fileItems, fileMeta := e.filePathChannel(ctx, query, opts)
	if fileItems != nil {
		channels = append(channels, ChannelResult{Channel: channelFilePath, Items: fileItems})
		outcome.ActiveChannels = append(outcome.ActiveChannels, channelFilePath)
		mergeMetadata(metadata, fileMeta)
	}

	if e.embedder != nil {
		outcome.EmbeddingProviderDisplay = e.embedder.ActiveProviderDisplay()
		outcome.EmbeddingDimension = e.embedder.Dimension()

		semanticItems, semanticMeta, degraded, semErr := e.semanticChannel(ctx, query, opts)
		outcome.SemanticDegraded = degraded
		if semErr != nil {
			outcome.SemanticError = semErr.Error()
		}
		if semanticItems != nil {
			channels = append(channels, ChannelResult{Channel: channelSemantic, Items: semanticItems})
			outcome.ActiveChannels = append(outcome.ActiveChannels, channelSemantic)
			mergeMetadata(metadata, semanticMeta)
		}
		outcome.HnswUsed = e.ann != nil && e.ann.IsReady()
		if e.ann != nil {
			outcome.HnswVectorCount = e.ann.Count()
		}
	}

	scores, provenance := ComputeRRFScores(channels, opts.RRFK)

	results := make([]Result, 0, len(scores))
	for filePath, score := range scores {
		r := metadata[filePath]
		r.FilePath = filePath
		r.Score = score
		r.Provenance = provenance[filePath]
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].FilePath < results[j].FilePath
	})
	if len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}
	outcome.Results = results

	span.SetAttributes(
		attribute.StringSlice("active_channels", outcome.ActiveChannels),
		attribute.Bool("semantic_degraded", outcome.SemanticDegraded),
		attribute.Int("result_count", len(outcome.Results)),
	)
	if outcome.SemanticError != "" {
		span.SetStatus(codes.Error, outcome.SemanticError)
	}

	return outcome, nil
}

func mergeMetadata(dst map[string]Result, src map[string]Result) {
	for k, v := range src {
		existing, ok := dst[k]
		if !ok {
			dst[k] = v
			continue
		}
		if existing.SymbolName == "" {
			existing.SymbolName = v.SymbolName
		}
		if existing.ChunkText == "" {
			existing.ChunkText = v.ChunkText
		}
		if existing.SemanticSimilarity == nil {
			existing.SemanticSimilarity = v.SemanticSimilarity
		}
		dst[k] = existing
	}
}

// symbolChannel ranks by FTS5 BM25 over symbol names, falling back to a
// LIKE scan on empty results or error (spec.md §4.6 channel 1).
func (e *Engine) symbolChannel(ctx context.Context, query string, opts Options) ([]string, map[string]Result) {
	ctx, span := searchTracer.Start(ctx, "search.Engine.symbolChannel")
	defer span.End()

	hits, err := e.store.FTSSearchSymbols(ctx, query, opts.ChannelMaxResults)
	if err != nil || len(hits) == 0 {
		if err != nil {
			e.logger.Warn("search: symbol fts failed, falling back to LIKE", "error", err)
		}
		syms, likeErr := e.store.QuerySymbols(ctx, "%"+query+"%")
		if likeErr != nil {
			e.logger.Warn("search: symbol LIKE fallback failed", "error", likeErr)
			return nil, nil
		}
		return dedupSymbols(syms, opts.ChannelMaxResults)
	}

	symbols := make([]store.Symbol, len(hits))
	for i, h := range hits {
		symbols[i] = h.Symbol
	}
	return dedupSymbols(symbols, opts.ChannelMaxResults)
}

func dedupSymbols(syms []store.Symbol, limit int) ([]string, map[string]Result) {
	var items []string
	meta := make(map[string]Result)
	seen := make(map[string]bool)
	for _, sym := range syms {
		if len(items) >= limit {
			break
		}
		if seen[sym.ContainingFile] {
			continue
		}
		seen[sym.ContainingFile] = true
		items = append(items, sym.ContainingFile)
		meta[sym.ContainingFile] = Result{SymbolName: sym.Name}
	}
	return items, meta
}

// filePathChannel ranks by FTS5 BM25 over relative paths, falling back to
// a LIKE scan (spec.md §4.6 channel 2).
func (e *Engine) filePathChannel(ctx context.Context, query string, opts Options) ([]string, map[string]Result) {
	ctx, span := searchTracer.Start(ctx, "search.Engine.filePathChannel")
	defer span.End()

	hits, err := e.store.FTSSearchFiles(ctx, query, opts.ProjectPath, opts.ChannelMaxResults)
	if err != nil || len(hits) == 0 {
		if err != nil {
			e.logger.Warn("search: file fts failed, falling back to LIKE", "error", err)
		}
		files, likeErr := e.store.QueryFilesByPath(ctx, opts.ProjectPath, "%"+query+"%")
		if likeErr != nil {
			e.logger.Warn("search: file LIKE fallback failed", "error", likeErr)
			return nil, nil
		}
		var items []string
		for i, f := range files {
			if i >= opts.ChannelMaxResults {
				break
			}
			items = append(items, f.RelativePath)
		}
		return items, nil
	}

	var items []string
	for i, h := range hits {
		if i >= opts.ChannelMaxResults {
			break
		}
		items = append(items, h.RelativePath)
	}
	return items, nil
}

// semanticChannel embeds the query, searches the AnnIndex (falling back to
// VectorStore.SemanticSearch if the index is absent or not ready), and
// resolves metadata (spec.md §4.6 channel 3). degraded is true whenever the
// channel could not fully complete; err carries the reason.
func (e *Engine) semanticChannel(ctx context.Context, query string, opts Options) ([]string, map[string]Result, bool, error) {
	ctx, span := searchTracer.Start(ctx, "search.Engine.semanticChannel")
	defer span.End()

	queryVec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, true, err
	}

	if e.ann != nil && e.ann.IsReady() {
		hits := e.ann.Search(queryVec, opts.ChannelMaxResults)
		ids := make([]int64, len(hits))
		for i, h := range hits {
			ids[i] = h.DataID
		}
		refs, err := e.store.GetEmbeddingsByRowIDs(ctx, ids)
		if err != nil {
			return nil, nil, true, err
		}

		var items []string
		meta := make(map[string]Result)
		for _, h := range hits {
			ref, ok := refs[h.DataID]
			if !ok {
				continue
			}
			if _, seen := meta[ref.FilePath]; !seen {
				items = append(items, ref.FilePath)
			}
			sim := 1 - h.Distance
			meta[ref.FilePath] = Result{ChunkText: ref.ChunkText, SemanticSimilarity: &sim}
		}
		return items, meta, false, nil
	}

	semHits, err := e.store.SemanticSearch(ctx, opts.ProjectPath, queryVec, opts.ChannelMaxResults)
	if err != nil {
		return nil, nil, true, err
	}

	var items []string
	meta := make(map[string]Result)
	for _, h := range semHits {
		if _, seen := meta[h.FilePath]; !seen {
			items = append(items, h.FilePath)
		}
		sim := h.Similarity
		meta[h.FilePath] = Result{ChunkText: h.ChunkText, SemanticSimilarity: &sim}
	}
	// Reaching brute force with an AnnIndex configured means it isn't ready
	// yet, which is reported as a degradation so callers know results came
	// from the slower ground-truth path. An Engine built without an
	// AnnIndex uses brute force as its normal path and reports no
	// degradation.
	return items, meta, e.ann != nil, nil
}
