// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import "github.com/AleutianAI/aleutian-core/internal/message"

// registerBuiltins wires every built-in tool's ToolDefinition (consumed by
// ProviderAdapter.SendMessage/StreamMessage), its JSON schema (used for
// argument validation at dispatch), and its Handler.
func (ex *Executor) registerBuiltins() {
	ex.register(message.ToolDefinition{
		Name:        "Read",
		Description: "Read a file's contents, optionally starting at a line offset and bounded by a line limit.",
		Parameters: map[string]message.ParamDef{
			"file_path": stringDef("path to the file, relative to the project root"),
			"offset":    intDef("0-based line to start from (default 0)"),
			"limit":     intDef("maximum number of lines to return (default 2000)"),
		},
		Required: []string{"file_path"},
	}, readSchema, handleRead)

	ex.register(message.ToolDefinition{
		Name:        "Write",
		Description: "Write content to a file, creating it (and parent directories) if it does not exist, overwriting if it does.",
		Parameters: map[string]message.ParamDef{
			"file_path": stringDef("path to the file, relative to the project root"),
			"content":   stringDef("full contents to write"),
		},
		Required: []string{"file_path", "content"},
	}, writeSchema, handleWrite)

	ex.register(message.ToolDefinition{
		Name:        "Edit",
		Description: "Replace an exact occurrence of old with new inside a file, returning a unified-diff preview of the change.",
		Parameters: map[string]message.ParamDef{
			"file_path":             stringDef("path to the file, relative to the project root"),
			"old":                   stringDef("exact text to replace"),
			"new":                   stringDef("replacement text"),
			"expected_replacements": intDef("number of occurrences expected (default 1); the call fails if the count doesn't match"),
		},
		Required: []string{"file_path", "old", "new"},
	}, editSchema, handleEdit)

	ex.register(message.ToolDefinition{
		Name:        "LS",
		Description: "List the immediate contents of a directory.",
		Parameters: map[string]message.ParamDef{
			"path": stringDef("directory to list, relative to the project root (default '.')"),
		},
	}, lsSchema, handleLS)

	ex.register(message.ToolDefinition{
		Name:        "Glob",
		Description: "Find files whose relative path matches a glob pattern (supports ** for recursive matching).",
		Parameters: map[string]message.ParamDef{
			"pattern": stringDef("glob pattern, e.g. '**/*.go'"),
			"path":    stringDef("directory to search under, relative to the project root (default '.')"),
		},
		Required: []string{"pattern"},
	}, globSchema, handleGlob)

	ex.register(message.ToolDefinition{
		Name:        "Grep",
		Description: "Search file contents for a regular expression, optionally scoped by glob or language type.",
		Parameters: map[string]message.ParamDef{
			"pattern": stringDef("regular expression to search for"),
			"path":    stringDef("directory to search under, relative to the project root (default '.')"),
			"glob":    stringDef("restrict to files matching this glob pattern"),
			"type":    stringDef("restrict to files of this language (go, py, js, ts, rust, java)"),
		},
		Required: []string{"pattern"},
	}, grepSchema, handleGrep)

	ex.register(message.ToolDefinition{
		Name:        "Bash",
		Description: "Run a shell command in the project root with a bounded timeout.",
		Parameters: map[string]message.ParamDef{
			"command":    stringDef("shell command to execute"),
			"timeout_ms": intDef("timeout in milliseconds (default 120000)"),
		},
		Required: []string{"command"},
	}, bashSchema, handleBash)

	ex.register(message.ToolDefinition{
		Name:        "CodebaseSearch",
		Description: "Run a hybrid (semantic + full-text + symbol) search over the indexed project.",
		Parameters: map[string]message.ParamDef{
			"query": stringDef("natural-language or keyword search query"),
			"scope": enumDef("restrict results to this channel (default 'all')", "symbols", "files", "all"),
		},
		Required: []string{"query"},
	}, codebaseSearchSchema, handleCodebaseSearch)

	ex.register(message.ToolDefinition{
		Name:        "Task",
		Description: "Delegate a focused sub-task to a sub-agent and return its final report.",
		Parameters: map[string]message.ParamDef{
			"prompt":        stringDef("the sub-task description handed to the sub-agent"),
			"subagent_type": enumDef("sub-agent persona to use", "Explore", "Plan", "GeneralPurpose", "Bash"),
		},
		Required: []string{"prompt", "subagent_type"},
	}, taskSchema, handleTask)
}
