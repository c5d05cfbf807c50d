// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/aleutian-core/internal/message"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestExecute_UnknownToolFails(t *testing.T) {
	ex := New(t.TempDir())
	res := ex.Execute(context.Background(), message.ToolCall{Name: "NoSuchTool"})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "unknown tool")
}

func TestExecute_InvalidArgumentsFailSchemaValidation(t *testing.T) {
	ex := New(t.TempDir())
	res := ex.Execute(context.Background(), message.ToolCall{Name: "Read", Arguments: map[string]any{}})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "invalid arguments")
}

func TestExecute_NormalizesPathAliasBeforeValidation(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a.txt", "hello\nworld\n")
	ex := New(root)

	res := ex.Execute(context.Background(), message.ToolCall{Name: "Read", Arguments: map[string]any{"path": "a.txt"}})
	require.True(t, res.Success)
	require.Contains(t, res.Output, "hello")
}

func TestRead_IsCachedAcrossCalls(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a.txt", "line1\nline2\n")
	ex := New(root)

	res1 := ex.Execute(context.Background(), message.ToolCall{Name: "Read", Arguments: map[string]any{"file_path": "a.txt"}})
	require.True(t, res1.Success)

	_, found := ex.readCache.get(readCacheKey{path: filepath.Join(root, "a.txt"), offset: 0, limit: 2000})
	require.True(t, found)
}

func TestWrite_ThenReadSeesNewContent(t *testing.T) {
	root := t.TempDir()
	ex := New(root)

	res := ex.Execute(context.Background(), message.ToolCall{Name: "Write", Arguments: map[string]any{
		"file_path": "out.txt", "content": "hello world",
	}})
	require.True(t, res.Success)

	read := ex.Execute(context.Background(), message.ToolCall{Name: "Read", Arguments: map[string]any{"file_path": "out.txt"}})
	require.True(t, read.Success)
	require.Contains(t, read.Output, "hello world")
}

func TestEdit_ReplacesOneOccurrenceAndRendersDiff(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a.go", "package main\n\nfunc Foo() {}\n")
	ex := New(root)

	res := ex.Execute(context.Background(), message.ToolCall{Name: "Edit", Arguments: map[string]any{
		"file_path": "a.go", "old": "func Foo() {}", "new": "func Bar() {}",
	}})
	require.True(t, res.Success)
	require.Contains(t, res.Output, "-func Foo() {}")
	require.Contains(t, res.Output, "+func Bar() {}")

	data, err := os.ReadFile(filepath.Join(root, "a.go"))
	require.NoError(t, err)
	require.Contains(t, string(data), "func Bar() {}")
}

func TestEdit_FailsWhenOldStringNotFound(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a.go", "package main\n")
	ex := New(root)

	res := ex.Execute(context.Background(), message.ToolCall{Name: "Edit", Arguments: map[string]any{
		"file_path": "a.go", "old": "nonexistent", "new": "x",
	}})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "not found")
}

func TestEdit_FailsWhenOccurrenceCountMismatchesExpected(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a.go", "x\nx\n")
	ex := New(root)

	res := ex.Execute(context.Background(), message.ToolCall{Name: "Edit", Arguments: map[string]any{
		"file_path": "a.go", "old": "x", "new": "y",
	}})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "expected 1")
}

func TestLS_ListsDirectoryEntriesSorted(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "b.txt", "")
	writeTestFile(t, root, "a.txt", "")
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	ex := New(root)

	res := ex.Execute(context.Background(), message.ToolCall{Name: "LS", Arguments: map[string]any{}})
	require.True(t, res.Success)
	lines := strings.Split(strings.TrimSpace(res.Output), "\n")
	require.Equal(t, []string{"a.txt", "b.txt", "sub/"}, lines)
}

func TestGlob_MatchesRecursiveDoubleStarPattern(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "pkg/a.go", "")
	writeTestFile(t, root, "pkg/sub/b.go", "")
	writeTestFile(t, root, "README.md", "")
	ex := New(root)

	res := ex.Execute(context.Background(), message.ToolCall{Name: "Glob", Arguments: map[string]any{"pattern": "**/*.go"}})
	require.True(t, res.Success)
	require.Contains(t, res.Output, "pkg/a.go")
	require.Contains(t, res.Output, "pkg/sub/b.go")
	require.NotContains(t, res.Output, "README.md")
}

func TestGrep_FindsPatternWithLineNumber(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a.go", "package main\n\nfunc TargetFunc() {}\n")
	ex := New(root)

	res := ex.Execute(context.Background(), message.ToolCall{Name: "Grep", Arguments: map[string]any{"pattern": "TargetFunc"}})
	require.True(t, res.Success)
	require.Contains(t, res.Output, "a.go:3:func TargetFunc() {}")
}

func TestBash_RunsCommandInProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "marker.txt", "")
	ex := New(root)

	res := ex.Execute(context.Background(), message.ToolCall{Name: "Bash", Arguments: map[string]any{"command": "ls"}})
	require.True(t, res.Success)
	require.Contains(t, res.Output, "marker.txt")
}

func TestBash_RejectsDeniedCommand(t *testing.T) {
	ex := New(t.TempDir())
	res := ex.Execute(context.Background(), message.ToolCall{Name: "Bash", Arguments: map[string]any{"command": "rm -rf /"}})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "denied")
}

func TestCodebaseSearch_FailsWithoutSearchFunctionWired(t *testing.T) {
	ex := New(t.TempDir())
	res := ex.Execute(context.Background(), message.ToolCall{Name: "CodebaseSearch", Arguments: map[string]any{"query": "foo"}})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "unavailable")
}

func TestCodebaseSearch_DelegatesToWiredFunction(t *testing.T) {
	var gotQuery, gotScope string
	ex := New(t.TempDir(), WithCodebaseSearch(func(ctx context.Context, query, scope string) (string, error) {
		gotQuery, gotScope = query, scope
		return "found: foo.go", nil
	}))

	res := ex.Execute(context.Background(), message.ToolCall{Name: "CodebaseSearch", Arguments: map[string]any{
		"query": "parse config", "scope": "files",
	}})
	require.True(t, res.Success)
	require.Equal(t, "parse config", gotQuery)
	require.Equal(t, "files", gotScope)
	require.Contains(t, res.Output, "foo.go")
}

func TestTask_FailsWithoutTaskRunnerWired(t *testing.T) {
	ex := New(t.TempDir())
	res := ex.Execute(context.Background(), message.ToolCall{Name: "Task", Arguments: map[string]any{
		"prompt": "investigate", "subagent_type": "Explore",
	}})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "unavailable")
}

func TestTask_DelegatesToWiredSpawner(t *testing.T) {
	var gotPrompt, gotType string
	ex := New(t.TempDir(), WithTaskRunner(func(ctx context.Context, prompt, subagentType string) (string, error) {
		gotPrompt, gotType = prompt, subagentType
		return "sub-agent done", nil
	}))

	res := ex.Execute(context.Background(), message.ToolCall{Name: "Task", Arguments: map[string]any{
		"prompt": "find all TODOs", "subagent_type": "Explore",
	}})
	require.True(t, res.Success)
	require.Equal(t, "find all TODOs", gotPrompt)
	require.Equal(t, "Explore", gotType)
	require.Contains(t, res.Output, "sub-agent done")
}

func TestResolvePath_RejectsEscapeOutsideProjectRoot(t *testing.T) {
	ex := New(t.TempDir())
	res := ex.Execute(context.Background(), message.ToolCall{Name: "Read", Arguments: map[string]any{"file_path": "../../etc/passwd"}})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "escapes project root")
}

func TestSpawn_StartsWithFreshReadCacheButSharesWiring(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a.txt", "hello\n")
	called := false
	ex := New(root, WithCodebaseSearch(func(ctx context.Context, query, scope string) (string, error) {
		called = true
		return "ok", nil
	}))

	_ = ex.Execute(context.Background(), message.ToolCall{Name: "Read", Arguments: map[string]any{"file_path": "a.txt"}})
	child := ex.Spawn()

	_, found := child.readCache.get(readCacheKey{path: filepath.Join(root, "a.txt"), offset: 0, limit: 2000})
	require.False(t, found)

	res := child.Execute(context.Background(), message.ToolCall{Name: "CodebaseSearch", Arguments: map[string]any{"query": "x"}})
	require.True(t, res.Success)
	require.True(t, called)
}

func TestDefinitions_IncludesAllBuiltinTools(t *testing.T) {
	ex := New(t.TempDir())
	defs := ex.Definitions()
	names := make(map[string]bool)
	for _, d := range defs {
		names[d.Name] = true
	}
	for _, want := range []string{"Read", "Write", "Edit", "LS", "Glob", "Grep", "Bash", "CodebaseSearch", "Task"} {
		require.True(t, names[want], "missing tool definition %s", want)
	}
}
