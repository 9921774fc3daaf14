package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// spinnerFrames is the braille cycle most terminals render cleanly.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner overwrites one stdout line while a slow operation runs. Export
// and doctor show one during their store walk when stdout is a terminal.
type Spinner struct {
	suffix   string
	out      io.Writer
	interval time.Duration

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSpinner creates a spinner that prints suffix after the frame.
func NewSpinner(suffix string) *Spinner {
	return &Spinner{
		suffix:   suffix,
		out:      os.Stdout,
		interval: 100 * time.Millisecond,
	}
}

// Start begins animating. Start on a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.done = make(chan struct{})

	s.wg.Add(1)
	go s.spin(s.done)
}

func (s *Spinner) spin(done <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			frame = (frame + 1) % len(spinnerFrames)
			fmt.Fprintf(s.out, "\r%s %s", StylePrimary.Render(spinnerFrames[frame]), s.suffix)
		}
	}
}

// Stop halts the animation and clears the line. Safe to call twice.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	fmt.Fprint(s.out, "\r\033[K")
}
