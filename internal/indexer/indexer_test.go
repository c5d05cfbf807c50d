// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/aleutian-core/internal/embedding"
	"github.com/AleutianAI/aleutian-core/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestRunFullWalk_IndexesFilesAndSymbols(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {\n}\n")
	writeFile(t, root, "vendor/skip.go", "package vendor\n")

	s := newTestStore(t)
	ix := New(root, s, nil, nil, nil)

	var lastDone, lastTotal int
	ix.OnProgress(func(done, total int) { lastDone, lastTotal = done, total })

	require.NoError(t, ix.RunFullWalk(context.Background()))
	require.Equal(t, lastDone, lastTotal)

	files, err := s.QueryFilesByPath(context.Background(), root, "main.go")
	require.NoError(t, err)
	require.Len(t, files, 1)

	syms, err := s.QuerySymbols(context.Background(), "main")
	require.NoError(t, err)
	require.NotEmpty(t, syms)

	vendored, err := s.QueryFilesByPath(context.Background(), root, "vendor/skip.go")
	require.NoError(t, err)
	require.Empty(t, vendored)
}

func TestRunFullWalk_FitsVocabularyAndPersistsNonZeroDimensionEmbeddings(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {\n\tdoSomething()\n}\n")

	s := newTestStore(t)
	mgr := embedding.NewManager(embedding.NewTFIDFProvider())
	ix := New(root, s, nil, mgr, nil)

	require.NoError(t, ix.RunFullWalk(context.Background()))
	require.Greater(t, mgr.Dimension(), 0, "indexing must grow the TF-IDF vocabulary, not leave it at dimension 0")

	summary, err := s.GetProjectSummary(context.Background(), root)
	require.NoError(t, err)
	require.Greater(t, summary.EmbeddingChunks, 0)
}

func TestRunFullWalk_SkipsUnchangedFileOnSecondRun(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package main\nfunc A() {}\n")

	s := newTestStore(t)
	ix := New(root, s, nil, nil, nil)
	require.NoError(t, ix.RunFullWalk(context.Background()))
	require.NoError(t, ix.RunFullWalk(context.Background())) // should not error re-processing unchanged content

	files, err := s.QueryFilesByPath(context.Background(), root, "a.go")
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestStartWatch_DetectsCreatedFile(t *testing.T) {
	root := t.TempDir()
	s := newTestStore(t)
	ix := New(root, s, nil, nil, nil)
	require.NoError(t, ix.RunFullWalk(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ix.StartWatch(ctx))
	defer ix.StopWatch()

	writeFile(t, root, "new.go", "package main\nfunc New() {}\n")

	require.Eventually(t, func() bool {
		files, err := s.QueryFilesByPath(context.Background(), root, "new.go")
		return err == nil && len(files) == 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestStartWatch_DetectsDeletedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "gone.go", "package main\nfunc Gone() {}\n")

	s := newTestStore(t)
	ix := New(root, s, nil, nil, nil)
	require.NoError(t, ix.RunFullWalk(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ix.StartWatch(ctx))
	defer ix.StopWatch()

	require.NoError(t, os.Remove(filepath.Join(root, "gone.go")))

	require.Eventually(t, func() bool {
		files, err := s.QueryFilesByPath(context.Background(), root, "gone.go")
		return err == nil && len(files) == 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestDetectLanguage(t *testing.T) {
	require.Equal(t, "go", detectLanguage("foo/bar.go"))
	require.Equal(t, "python", detectLanguage("foo/bar.py"))
	require.Equal(t, "", detectLanguage("foo/bar.unknownext"))
}

func TestExtractSymbols_GoFunctionsAndStructs(t *testing.T) {
	content := []byte("package main\n\nfunc Foo() {}\n\ntype Bar struct {\n}\n")
	syms := extractSymbols(content, "foo.go", "go")
	require.Len(t, syms, 2)
	require.Equal(t, "Foo", syms[0].Name)
	require.Equal(t, store.SymbolFunction, syms[0].Kind)
	require.Equal(t, "Bar", syms[1].Name)
	require.Equal(t, store.SymbolStruct, syms[1].Kind)
}

func TestExtractSymbols_UnknownLanguageYieldsNil(t *testing.T) {
	syms := extractSymbols([]byte("whatever"), "f.xyz", "")
	require.Nil(t, syms)
}

func TestChunkText_SplitsLongContentWithOverlap(t *testing.T) {
	var content string
	for i := 0; i < 200; i++ {
		content += "line\n"
	}
	chunks := chunkText(content)
	require.Greater(t, len(chunks), 1)
}

func TestChunkText_EmptyContentYieldsNoChunks(t *testing.T) {
	require.Empty(t, chunkText("   \n\n  "))
}

func TestIgnoreSet_MatchesGitignorePatterns(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("*.log\nbuild/\n"), 0o644))
	is := loadIgnoreSet(root)
	require.True(t, is.matches("debug.log"))
	require.True(t, is.matches("build/output.bin"))
	require.False(t, is.matches("main.go"))
}
