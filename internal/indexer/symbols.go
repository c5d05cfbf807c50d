// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package indexer

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/AleutianAI/aleutian-core/internal/store"
)

// symbolPattern pairs a compiled regex with the SymbolKind its first capture
// group names a declaration of, and the capture-group index holding the
// identifier itself.
type symbolPattern struct {
	re       *regexp.Regexp
	kind     store.SymbolKind
	nameIdx  int
}

// symbolPatternsByLanguage is the "light heuristics" symbol extraction
// spec.md §4.7 explicitly sanctions as a lighter cousin of a full AST parse.
// Grounded in spirit on the teacher's services/trace/ast/{javascript,python,
// typescript}_parser.go — same declaration kinds (function, class/struct,
// method), same line-position bookkeeping — but as line-oriented regex
// matching rather than tree-sitter node traversal, because those parser
// files depend on smacker/go-tree-sitter plus per-language grammar packages
// and a shared types/query-metrics file absent from this pack's retrieved
// slice (see DESIGN.md).
var symbolPatternsByLanguage = map[string][]symbolPattern{
	"go": {
		{regexp.MustCompile(`^\s*func\s+\([^)]*\)\s*(\w+)\s*\(`), store.SymbolMethod, 1},
		{regexp.MustCompile(`^\s*func\s+(\w+)\s*\(`), store.SymbolFunction, 1},
		{regexp.MustCompile(`^\s*type\s+(\w+)\s+struct\b`), store.SymbolStruct, 1},
		{regexp.MustCompile(`^\s*type\s+(\w+)\s+interface\b`), store.SymbolTrait, 1},
		{regexp.MustCompile(`^\s*const\s+(\w+)\s*=`), store.SymbolConst, 1},
	},
	"python": {
		{regexp.MustCompile(`^\s*def\s+(\w+)\s*\(`), store.SymbolFunction, 1},
		{regexp.MustCompile(`^\s*class\s+(\w+)\s*[:\(]`), store.SymbolClass, 1},
	},
	"javascript": {
		{regexp.MustCompile(`^\s*function\s+(\w+)\s*\(`), store.SymbolFunction, 1},
		{regexp.MustCompile(`^\s*class\s+(\w+)\s*`), store.SymbolClass, 1},
		{regexp.MustCompile(`^\s*(?:export\s+)?const\s+(\w+)\s*=\s*(?:async\s*)?\(`), store.SymbolFunction, 1},
		{regexp.MustCompile(`^\s*(?:export\s+)?const\s+(\w+)\s*=\s*(?:async\s+)?function`), store.SymbolFunction, 1},
	},
	"typescript": {
		{regexp.MustCompile(`^\s*(?:export\s+)?function\s+(\w+)\s*\(`), store.SymbolFunction, 1},
		{regexp.MustCompile(`^\s*(?:export\s+)?class\s+(\w+)\s*`), store.SymbolClass, 1},
		{regexp.MustCompile(`^\s*(?:export\s+)?interface\s+(\w+)\s*`), store.SymbolTrait, 1},
		{regexp.MustCompile(`^\s*(?:export\s+)?const\s+(\w+)\s*=\s*(?:async\s*)?\(`), store.SymbolFunction, 1},
		{regexp.MustCompile(`^\s*(?:export\s+)?type\s+(\w+)\s*=`), store.SymbolModule, 1},
	},
	"rust": {
		{regexp.MustCompile(`^\s*(?:pub\s+)?fn\s+(\w+)\s*\(`), store.SymbolFunction, 1},
		{regexp.MustCompile(`^\s*(?:pub\s+)?struct\s+(\w+)\b`), store.SymbolStruct, 1},
		{regexp.MustCompile(`^\s*(?:pub\s+)?enum\s+(\w+)\b`), store.SymbolEnum, 1},
		{regexp.MustCompile(`^\s*(?:pub\s+)?trait\s+(\w+)\b`), store.SymbolTrait, 1},
	},
	"java": {
		{regexp.MustCompile(`^\s*(?:public|private|protected)?\s*(?:static\s+)?class\s+(\w+)\b`), store.SymbolClass, 1},
		{regexp.MustCompile(`^\s*(?:public|private|protected)?\s*(?:static\s+)?interface\s+(\w+)\b`), store.SymbolTrait, 1},
	},
}

// extractSymbols runs the language's heuristic patterns over content,
// line by line, returning one Symbol per first match on a line. A
// language with no entry in symbolPatternsByLanguage yields nil, matching
// spec.md §4.7's "a parser that cannot handle a language still yields an
// entry with symbols = []".
func extractSymbols(content []byte, relativePath, language string) []store.Symbol {
	patterns := symbolPatternsByLanguage[language]
	if len(patterns) == 0 {
		return nil
	}

	var symbols []store.Symbol
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		for _, p := range patterns {
			m := p.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			symbols = append(symbols, store.Symbol{
				Name:           m[p.nameIdx],
				Kind:           p.kind,
				LineNumber:     lineNo,
				ContainingFile: relativePath,
			})
			break
		}
	}

	return symbols
}
