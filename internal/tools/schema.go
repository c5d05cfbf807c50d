// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import "github.com/AleutianAI/aleutian-core/internal/message"

// aliasTable renames provider-variant argument keys onto the canonical
// names our handlers expect. Different providers (and different prompt
// fallback decoders, see internal/fallback) sometimes emit "path" where
// we expect "file_path", or "cmd" where we expect "command" — spec.md
// §4.9's "normalize before validating".
var aliasTable = map[string]map[string]string{
	"Read":  {"path": "file_path"},
	"Write": {"path": "file_path", "text": "content"},
	"Edit":  {"path": "file_path", "old_string": "old", "new_string": "new"},
	"LS":    {"dir": "path", "directory": "path"},
	"Bash":  {"cmd": "command"},
	"Grep":  {"file_glob": "glob"},
}

// normalizeArguments applies the per-tool alias table, leaving unknown
// keys untouched (a stricter-than-necessary rejection belongs to schema
// validation, not normalization).
func normalizeArguments(toolName string, args map[string]any) map[string]any {
	aliases, found := aliasTable[toolName]
	if !found || len(args) == 0 {
		return args
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if canonical, renamed := aliases[k]; renamed {
			if _, alreadySet := args[canonical]; !alreadySet {
				out[canonical] = v
				continue
			}
		}
		out[k] = v
	}
	return out
}

// stringDef builds a ParamDef for a required or optional string argument.
func stringDef(description string) message.ParamDef {
	return message.ParamDef{Type: "string", Description: description}
}

func intDef(description string) message.ParamDef {
	return message.ParamDef{Type: "integer", Description: description}
}

func enumDef(description string, values ...string) message.ParamDef {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return message.ParamDef{Type: "string", Description: description, Enum: enum}
}
