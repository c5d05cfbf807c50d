// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_RegistersExpectedSubcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.Contains(t, names, "version")
	require.Contains(t, names, "index")
	require.Contains(t, names, "search")
	require.Contains(t, names, "chat")
}

func TestIndexCmd_RegistersEnsureStatusReindexRemove(t *testing.T) {
	idx := indexCmd()

	var names []string
	for _, c := range idx.Commands() {
		names = append(names, c.Name())
	}
	require.ElementsMatch(t, []string{"ensure", "status", "reindex", "remove"}, names)
}

func TestDefaultDataHome_ReturnsNonEmptyPath(t *testing.T) {
	require.NotEmpty(t, defaultDataHome())
}

func TestDefaultConfigPath_ReturnsNonEmptyPath(t *testing.T) {
	require.NotEmpty(t, defaultConfigPath())
}
