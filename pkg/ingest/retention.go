package ingest

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Sweeper periodically deletes result and status files older than the
// retention window so the results directory stays bounded.
type Sweeper struct {
	Dir       string
	Retention time.Duration
	Interval  time.Duration
}

// Run sweeps until the context is canceled. A zero retention disables the
// sweeper entirely.
func (s *Sweeper) Run(ctx context.Context) {
	if s.Retention <= 0 {
		return
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.sweep()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep() {
	cutoff := time.Now().Add(-s.Retention)

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		log.Printf("[sweeper] read %s: %v", s.Dir, err)
		return
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.Dir, entry.Name())); err != nil {
			log.Printf("[sweeper] remove %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Printf("[sweeper] removed %d expired result files", removed)
	}
}
