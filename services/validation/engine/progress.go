// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"log/slog"
)

// Progress receives a label for each rule about to run.
//
// SubTask is called from worker goroutines concurrently.
type Progress interface {
	SubTask(name string)
}

// NopProgress discards progress.
type NopProgress struct{}

// SubTask implements Progress.
func (NopProgress) SubTask(string) {}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(name string)

// SubTask implements Progress.
func (f ProgressFunc) SubTask(name string) { f(name) }

// LogProgress writes each subtask to a logger at debug level.
type LogProgress struct {
	Logger *slog.Logger
}

// SubTask implements Progress.
func (p LogProgress) SubTask(name string) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("validating", slog.String("task", name))
}
