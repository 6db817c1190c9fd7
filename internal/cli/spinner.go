// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// Spinner draws a waiting indicator on one terminal line. It is only
// started when the writer is a terminal.
type Spinner struct {
	w     io.Writer
	cfg   styles.SpinnerConfig
	label string

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	started time.Time
}

// NewSpinner creates a spinner that writes to w.
func NewSpinner(w io.Writer, cfg styles.SpinnerConfig, label string) *Spinner {
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	return &Spinner{w: w, cfg: cfg, label: label}
}

// Start begins drawing. Calling Start on a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.started = time.Now()
	go s.run(s.stop, s.done)
}

func (s *Spinner) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for n := 0; ; n++ {
		elapsed := time.Since(s.started).Round(time.Second)
		fmt.Fprintf(s.w, "\r%s %s (%s)", s.cfg.Frame(n), s.label, elapsed)
		select {
		case <-stop:
			// Clear the line
			fmt.Fprint(s.w, "\r\033[K")
			return
		case <-ticker.C:
		}
	}
}

// Stop clears the indicator and waits for the drawing goroutine to exit.
// Stop is safe to call more than once.
func (s *Spinner) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
