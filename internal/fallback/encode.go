// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fallback

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/aleutian-core/internal/message"
)

// EncodeSystemPromptBlock builds the tool-fallback section of the system
// prompt: every available tool's name/description/parameters, and the
// fenced-block protocol the model must emit calls in, per spec.md §4.10.
func EncodeSystemPromptBlock(defs []message.ToolDefinition) string {
	sorted := make([]message.ToolDefinition, len(defs))
	copy(sorted, defs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var b strings.Builder
	b.WriteString("You do not have native function calling. To use a tool, emit EXACTLY one fenced block of this form and then stop:\n\n")
	b.WriteString("```tool_call\n{\"tool\": \"<Name>\", \"arguments\": {...}}\n```\n\n")
	b.WriteString("Available tools:\n\n")
	for _, def := range sorted {
		fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
		params, err := json.Marshal(def.Parameters)
		if err == nil {
			fmt.Fprintf(&b, "  parameters: %s\n", params)
		}
		if len(def.Required) > 0 {
			fmt.Fprintf(&b, "  required: %s\n", strings.Join(def.Required, ", "))
		}
	}
	return b.String()
}
