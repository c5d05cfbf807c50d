// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// renderUnifiedDiff computes a line-level edit script between old and new
// with a hand-rolled LCS (go-diff has no diff-computation API, only
// parse/print for an already-computed unified diff) and hands the
// resulting hunk to diff.PrintFileDiff for the textual preview shown in
// the Edit tool's result, per spec.md §4.9.
func renderUnifiedDiff(relPath, oldText, newText string) (string, error) {
	oldLines := splitKeepEmpty(oldText)
	newLines := splitKeepEmpty(newText)

	body, origLines, newLineCount := lcsHunkBody(oldLines, newLines)

	fd := &diff.FileDiff{
		OrigName: "a/" + relPath,
		NewName:  "b/" + relPath,
		Hunks: []*diff.Hunk{
			{
				OrigStartLine: 1,
				OrigLines:     int32(origLines),
				NewStartLine:  1,
				NewLines:      int32(newLineCount),
				Body:          []byte(body),
			},
		},
	}

	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func splitKeepEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// lcsHunkBody builds a unified-diff hunk body (space/minus/plus-prefixed
// lines) from the longest common subsequence of old and new lines.
func lcsHunkBody(oldLines, newLines []string) (body string, origCount, newCount int) {
	n, m := len(oldLines), len(newLines)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if oldLines[i] == newLines[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var b strings.Builder
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case oldLines[i] == newLines[j]:
			b.WriteString(" " + oldLines[i] + "\n")
			i++
			j++
			origCount++
			newCount++
		case dp[i+1][j] >= dp[i][j+1]:
			b.WriteString("-" + oldLines[i] + "\n")
			i++
			origCount++
		default:
			b.WriteString("+" + newLines[j] + "\n")
			j++
			newCount++
		}
	}
	for ; i < n; i++ {
		b.WriteString("-" + oldLines[i] + "\n")
		origCount++
	}
	for ; j < m; j++ {
		b.WriteString("+" + newLines[j] + "\n")
		newCount++
	}
	return b.String(), origCount, newCount
}
