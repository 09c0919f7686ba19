// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner is an animated status line. Its SubTask method lets it serve as
// a validation progress sink.
type Spinner struct {
	w        io.Writer
	level    PersonalityLevel
	interval time.Duration

	mu         sync.Mutex
	message    string
	task       string
	running    bool
	frameIndex int
	stop       chan struct{}
	done       chan struct{}
}

// NewSpinner creates a spinner writing to w with the current level.
func NewSpinner(w io.Writer, message string) *Spinner {
	return &Spinner{
		w:        w,
		level:    GetPersonalityLevel(),
		interval: 80 * time.Millisecond,
		message:  message,
	}
}

// WithLevel overrides the personality level.
func (s *Spinner) WithLevel(level PersonalityLevel) *Spinner {
	s.level = level
	return s
}

// Start begins the animation. Machine output prints the message once.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	if s.level == PersonalityMachine {
		fmt.Fprintf(s.w, "PROGRESS: %s\n", s.message)
		return
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
}

func (s *Spinner) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			fmt.Fprint(s.w, "\r\033[K")
			return
		case <-ticker.C:
			s.mu.Lock()
			frame := Styles.Highlight.Render(spinnerFrames[s.frameIndex])
			line := s.message
			if s.task != "" {
				line += " " + Styles.Muted.Render(s.task)
			}
			s.frameIndex = (s.frameIndex + 1) % len(spinnerFrames)
			fmt.Fprintf(s.w, "\r\033[K%s %s", frame, line)
			s.mu.Unlock()
		}
	}
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// UpdateMessage changes the spinner message while running
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// SubTask shows name next to the message. Safe for concurrent use.
func (s *Spinner) SubTask(name string) {
	s.mu.Lock()
	s.task = name
	s.mu.Unlock()
}

// Task returns the last sub-task name.
func (s *Spinner) Task() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task
}
