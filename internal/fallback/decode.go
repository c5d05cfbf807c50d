// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fallback

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/AleutianAI/aleutian-core/internal/message"
)

var (
	fencedToolCallRe = regexp.MustCompile("(?s)```tool_call\\s*\\n(.*?)```")
	xmlToolCallRe    = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)
	bracketFormRe    = regexp.MustCompile(`\[TOOL\]\s*(\w+)\(([^)]*)\)`)
	xmlOpenTagRe     = regexp.MustCompile(`<([A-Za-z_][A-Za-z0-9_]*)>`)
	directXMLParamRe = regexp.MustCompile(`(?s)<([A-Za-z_][A-Za-z0-9_]*)>(.*?)</([A-Za-z_][A-Za-z0-9_]*)>`)
	bareCallLineRe   = regexp.MustCompile(`(?m)^\s*(\w+)\(([^)\n]*)\)\s*$`)
	toolCallLabelRe  = regexp.MustCompile(`(?i)tool_call:\s*`)
)

type span struct {
	start, end int
	call       message.ToolCall
}

// Decode runs the six-pass decoder over text, additive across passes 1-4
// (always run) and, only if those yielded nothing, passes 5-6 as a
// last-resort salvage, per spec.md §4.10. toolNames resolves a
// case-insensitive/lowercase tag or bracket name to its canonical tool
// name; a name not present in toolNames is ignored by that pass.
func Decode(text string, toolNames map[string]string) DecodeResult {
	remaining := text
	var calls []message.ToolCall

	conservative := []func(string, map[string]string) ([]span, string){
		decodeFencedToolCall,
		decodeXMLToolCall,
		decodeBracketForm,
		decodeDirectXML,
	}
	for _, pass := range conservative {
		var found []span
		found, remaining = pass(remaining, toolNames)
		for _, s := range found {
			calls = append(calls, s.call)
		}
	}

	if len(calls) == 0 {
		salvage := []func(string, map[string]string) ([]span, string){
			decodeBareCallLine,
			decodeBareJSON,
		}
		for _, pass := range salvage {
			var found []span
			found, remaining = pass(remaining, toolNames)
			for _, s := range found {
				calls = append(calls, s.call)
			}
		}
	}

	return DecodeResult{Calls: calls, Text: cleanResidual(remaining)}
}

// canonicalName resolves name case-insensitively through toolNames,
// returning ("", false) if no tool matches.
func canonicalName(toolNames map[string]string, name string) (string, bool) {
	if canon, ok := toolNames[name]; ok {
		return canon, true
	}
	canon, ok := toolNames[strings.ToLower(name)]
	return canon, ok
}

func removeSpans(text string, spans []span) string {
	if len(spans) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, s := range spans {
		if s.start < last {
			continue
		}
		b.WriteString(text[last:s.start])
		last = s.end
	}
	b.WriteString(text[last:])
	return b.String()
}

func decodeFencedToolCall(text string, toolNames map[string]string) ([]span, string) {
	var spans []span
	matches := fencedToolCallRe.FindAllStringSubmatchIndex(text, -1)
	for _, m := range matches {
		body := text[m[2]:m[3]]
		call, ok := parseToolCallJSON(body, toolNames)
		if !ok {
			continue
		}
		spans = append(spans, span{start: m[0], end: m[1], call: call})
	}
	return spans, removeSpans(text, spans)
}

func decodeXMLToolCall(text string, toolNames map[string]string) ([]span, string) {
	var spans []span
	matches := xmlToolCallRe.FindAllStringSubmatchIndex(text, -1)
	for _, m := range matches {
		body := text[m[2]:m[3]]
		call, ok := parseToolCallJSON(body, toolNames)
		if !ok {
			continue
		}
		spans = append(spans, span{start: m[0], end: m[1], call: call})
	}
	return spans, removeSpans(text, spans)
}

func parseToolCallJSON(body string, toolNames map[string]string) (message.ToolCall, bool) {
	var decoded struct {
		Tool      string         `json:"tool"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &decoded); err != nil {
		return message.ToolCall{}, false
	}
	canon, ok := canonicalName(toolNames, decoded.Tool)
	if !ok {
		return message.ToolCall{}, false
	}
	return message.ToolCall{ID: newCallID(), Name: canon, Arguments: decoded.Arguments}, true
}

func decodeBracketForm(text string, toolNames map[string]string) ([]span, string) {
	var spans []span
	matches := bracketFormRe.FindAllStringSubmatchIndex(text, -1)
	for _, m := range matches {
		name := text[m[2]:m[3]]
		argStr := strings.TrimSpace(text[m[4]:m[5]])
		canon, ok := canonicalName(toolNames, name)
		if !ok {
			continue
		}
		args := map[string]any{}
		if argStr != "" {
			param, hasParam := primaryParam[canon]
			if !hasParam {
				param = "value"
			}
			args[param] = unquote(argStr)
		}
		spans = append(spans, span{start: m[0], end: m[1], call: message.ToolCall{ID: newCallID(), Name: canon, Arguments: args}})
	}
	return spans, removeSpans(text, spans)
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// decodeDirectXML matches <ToolName><param>value</param>...</ToolName>
// (case-insensitive tag, spec.md §4.10 pass 4). Go's RE2 engine has no
// backreferences, so a single regexp can't require the closing tag to
// match the opening one; instead this scans each candidate opening tag
// and searches forward for its literal (case-insensitive) closing tag,
// which also correctly skips over nested <param> tags that a lazy
// "(.*?)</\w+>" regexp would otherwise match against by mistake.
func decodeDirectXML(text string, toolNames map[string]string) ([]span, string) {
	var spans []span
	for _, m := range xmlOpenTagRe.FindAllStringSubmatchIndex(text, -1) {
		openTag := text[m[2]:m[3]]
		canon, ok := canonicalName(toolNames, openTag)
		if !ok {
			continue
		}
		closeTag := "</" + openTag + ">"
		innerStart := m[1]
		closeIdx := indexCaseInsensitive(text[innerStart:], closeTag)
		if closeIdx < 0 {
			continue
		}
		inner := text[innerStart : innerStart+closeIdx]
		end := innerStart + closeIdx + len(closeTag)

		args := map[string]any{}
		for _, pm := range directXMLParamRe.FindAllStringSubmatch(inner, -1) {
			if !strings.EqualFold(pm[1], pm[3]) {
				continue
			}
			args[pm[1]] = strings.TrimSpace(pm[2])
		}
		spans = append(spans, span{start: m[0], end: end, call: message.ToolCall{ID: newCallID(), Name: canon, Arguments: args}})
	}
	return spans, removeSpans(text, spans)
}

func indexCaseInsensitive(haystack, needle string) int {
	return strings.Index(strings.ToLower(haystack), strings.ToLower(needle))
}

func decodeBareCallLine(text string, toolNames map[string]string) ([]span, string) {
	var spans []span
	matches := bareCallLineRe.FindAllStringSubmatchIndex(text, -1)
	for _, m := range matches {
		name := text[m[2]:m[3]]
		argStr := strings.TrimSpace(text[m[4]:m[5]])
		canon, ok := canonicalName(toolNames, name)
		if !ok {
			continue
		}
		args := map[string]any{}
		if argStr != "" {
			param, hasParam := primaryParam[canon]
			if !hasParam {
				param = "value"
			}
			args[param] = unquote(argStr)
		}
		spans = append(spans, span{start: m[0], end: m[1], call: message.ToolCall{ID: newCallID(), Name: canon, Arguments: args}})
	}
	return spans, removeSpans(text, spans)
}

// decodeBareJSON scans for balanced {"tool": ..., "arguments": {...}}
// objects, optionally preceded by a "tool_call:" label line. Nested
// braces inside arguments rule out a single regexp, so this walks
// candidate '{' positions and lets json.Decoder find the matching '}'.
func decodeBareJSON(text string, toolNames map[string]string) ([]span, string) {
	var spans []span
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var decoded struct {
			Tool      string         `json:"tool"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := dec.Decode(&decoded); err != nil {
			continue
		}
		if decoded.Tool == "" {
			continue
		}
		canon, ok := canonicalName(toolNames, decoded.Tool)
		if !ok {
			continue
		}
		end := i + int(dec.InputOffset())
		start := labelStart(text, i)
		spans = append(spans, span{start: start, end: end, call: message.ToolCall{ID: newCallID(), Name: canon, Arguments: decoded.Arguments}})
		i = end - 1
	}
	return spans, removeSpans(text, spans)
}

// labelStart returns the start of an immediately-preceding "tool_call:"
// label (allowing only whitespace between the label and jsonStart), or
// jsonStart itself if no such label is present.
func labelStart(text string, jsonStart int) int {
	prefix := text[:jsonStart]
	trimmed := strings.TrimRight(prefix, " \t\r\n")
	loc := toolCallLabelRe.FindAllStringIndex(trimmed, -1)
	if len(loc) == 0 {
		return jsonStart
	}
	last := loc[len(loc)-1]
	if last[1] == len(trimmed) {
		return last[0]
	}
	return jsonStart
}
