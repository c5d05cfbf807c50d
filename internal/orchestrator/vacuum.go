// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/AleutianAI/aleutian-core/internal/indexmanager"
)

// defaultVacuumSchedule runs once a day, off-peak relative to typical
// interactive usage; operators can override via NewVacuumScheduler's spec
// argument.
const defaultVacuumSchedule = "0 3 * * *"

// VacuumScheduler periodically sweeps every active project's VectorStore
// and embedding cache, answering spec.md §9's open question ("vector
// quantization/segment compaction/tombstoning ... a production-grade
// reimplementation should add at least a vacuum pass after deletions")
// with a concrete scheduled job rather than leaving it unaddressed.
type VacuumScheduler struct {
	cron *cron.Cron
	mgr  *indexmanager.Manager
	log  *slog.Logger
}

// NewVacuumScheduler builds a scheduler around mgr. spec is a standard
// five-field cron expression; an empty string uses defaultVacuumSchedule.
func NewVacuumScheduler(mgr *indexmanager.Manager, spec string, logger *slog.Logger) (*VacuumScheduler, error) {
	if spec == "" {
		spec = defaultVacuumSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New()
	vs := &VacuumScheduler{cron: c, mgr: mgr, log: logger}
	if _, err := c.AddFunc(spec, vs.sweep); err != nil {
		return nil, err
	}
	return vs, nil
}

// Start runs the scheduler in the background. Stop cancels it.
func (vs *VacuumScheduler) Start() { vs.cron.Start() }

// Stop halts future sweeps and blocks until any in-flight sweep finishes.
func (vs *VacuumScheduler) Stop() {
	<-vs.cron.Stop().Done()
}

func (vs *VacuumScheduler) sweep() {
	vs.log.Info("orchestrator: running scheduled vacuum sweep")
	vs.mgr.VacuumAll(context.Background())
}
