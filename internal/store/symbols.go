// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"fmt"
)

// QuerySymbols is the LIKE fallback over symbol names, per spec.md §4.4.
func (s *SQLiteStore) QuerySymbols(ctx context.Context, likePattern string) ([]Symbol, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, kind, line_number, relative_path
		FROM symbols WHERE name LIKE ?
	`, likePattern)
	if err != nil {
		return nil, fmt.Errorf("store: query_symbols: %w", err)
	}
	defer rows.Close()

	var out []Symbol
	for rows.Next() {
		var sym Symbol
		var kind string
		if err := rows.Scan(&sym.Name, &kind, &sym.LineNumber, &sym.ContainingFile); err != nil {
			return nil, fmt.Errorf("store: scanning symbol row: %w", err)
		}
		sym.Kind = SymbolKind(kind)
		out = append(out, sym)
	}
	return out, rows.Err()
}

// FTSSearchSymbols runs the BM25-ranked full-text channel over symbol names.
func (s *SQLiteStore) FTSSearchSymbols(ctx context.Context, query string, limit int) ([]FTSSymbolHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, kind, line_number, relative_path, bm25(symbols_fts) AS rank
		FROM symbols_fts
		WHERE symbols_fts MATCH ?
		ORDER BY rank LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: fts_search_symbols: %w", err)
	}
	defer rows.Close()

	var out []FTSSymbolHit
	for rows.Next() {
		var hit FTSSymbolHit
		var kind string
		if err := rows.Scan(&hit.Symbol.Name, &kind, &hit.Symbol.LineNumber, &hit.Symbol.ContainingFile, &hit.Rank); err != nil {
			return nil, fmt.Errorf("store: scanning fts symbol hit: %w", err)
		}
		hit.Symbol.Kind = SymbolKind(kind)
		out = append(out, hit)
	}
	return out, rows.Err()
}
