// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fallback

import (
	"strings"

	"github.com/AleutianAI/aleutian-core/internal/message"
)

// ToolNameIndex builds the case-insensitive name -> canonical name map
// Decode needs from a tool definition list.
func ToolNameIndex(defs []message.ToolDefinition) map[string]string {
	idx := make(map[string]string, len(defs)*2)
	for _, def := range defs {
		idx[def.Name] = def.Name
		idx[strings.ToLower(def.Name)] = def.Name
	}
	return idx
}

// cleanResidual dedups consecutive identical paragraphs (common when a
// model restates reasoning around each tool-call block) and trims the
// blank lines left behind once tool-call syntax is stripped out, per
// spec.md §4.10's "extract_text_without_tool_calls".
func cleanResidual(text string) string {
	paragraphs := strings.Split(text, "\n\n")
	out := make([]string, 0, len(paragraphs))
	var prev string
	first := true
	for _, p := range paragraphs {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		if !first && trimmed == prev {
			continue
		}
		out = append(out, trimmed)
		prev = trimmed
		first = false
	}
	return strings.TrimSpace(strings.Join(out, "\n\n"))
}
