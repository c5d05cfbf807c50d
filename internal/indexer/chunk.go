// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package indexer

import "strings"

const (
	// defaultChunkLines is the target window size for the paragraph/window
	// chunker, per spec.md §4.7's "stable chunker (paragraph/window-based,
	// bounded length)".
	defaultChunkLines = 60
	// defaultChunkOverlapLines keeps neighboring chunks from splitting a
	// declaration cleanly in half at the boundary.
	defaultChunkOverlapLines = 10
	// maxChunkChars bounds a single chunk regardless of line count, so an
	// unusually long single line can't produce an oversized embedding input.
	maxChunkChars = 4000
)

// chunkText splits content into overlapping, bounded-length windows.
// Grounded on spec.md §4.7's "paragraph/window-based, bounded length"
// requirement; windowing by line count keeps chunk boundaries readable
// (unlike a pure byte-offset split) while maxChunkChars caps pathological
// single-line files.
func chunkText(content string) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	var chunks []string

	step := defaultChunkLines - defaultChunkOverlapLines
	if step <= 0 {
		step = defaultChunkLines
	}

	for start := 0; start < len(lines); start += step {
		end := start + defaultChunkLines
		if end > len(lines) {
			end = len(lines)
		}
		chunk := strings.Join(lines[start:end], "\n")
		if len(chunk) > maxChunkChars {
			chunk = chunk[:maxChunkChars]
		}
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(lines) {
			break
		}
	}

	return chunks
}
