// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import "context"

const taskSchema = `{
  "type": "object",
  "properties": {
    "prompt": {"type": "string"},
    "subagent_type": {"type": "string", "enum": ["Explore", "Plan", "GeneralPurpose", "Bash"]}
  },
  "required": ["prompt", "subagent_type"]
}`

// handleTask spawns a sub-agent via the Orchestrator's injected TaskFunc.
// internal/tools cannot import internal/orchestrator (which itself
// depends on internal/tools for its own tool dispatch), so the
// Orchestrator supplies this callback at Executor construction time
// instead (WithTaskRunner). Depth limiting (MAX_DEPTH=3) and the
// Explore-escalation heuristic live entirely on the Orchestrator side of
// that boundary.
func handleTask(ctx context.Context, ex *Executor, args map[string]any) Result {
	if ex.taskFn == nil {
		return errResult("sub-agent delegation is unavailable in this context")
	}
	prompt, _ := args["prompt"].(string)
	if prompt == "" {
		return errResult("prompt is required")
	}
	subagentType, _ := args["subagent_type"].(string)
	if subagentType == "" {
		subagentType = "GeneralPurpose"
	}

	report, err := ex.taskFn(ctx, prompt, subagentType)
	if err != nil {
		return errResult("sub-agent failed: %v", err)
	}
	return ok(report)
}
