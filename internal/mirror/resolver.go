// Package mirror tracks which file mirrors are currently reachable.
package mirror

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/mmcdole/reel/internal/domain"
	"github.com/sourcegraph/conc/pool"
)

const defaultProbeConcurrency = 4

// Resolver probes the configured mirrors and answers servability questions
// against the reachable subset. Results are published to the observer as each
// probe resolves, so callers never wait on the slowest mirror.
type Resolver struct {
	mirrors  []string
	prober   domain.MirrorProber
	observer domain.MirrorObserver
	logger   *slog.Logger

	// MaxConcurrent bounds simultaneous probes.
	MaxConcurrent int

	notifyMu sync.Mutex

	mu        sync.RWMutex
	gen       uint64
	reachable map[string]bool
	checked   int
	done      bool
}

// NewResolver creates a resolver for mirrors. Blank entries are ignored.
func NewResolver(mirrors []string, prober domain.MirrorProber, observer domain.MirrorObserver, logger *slog.Logger) *Resolver {
	if observer == nil {
		observer = domain.NoOpObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	clean := make([]string, 0, len(mirrors))
	for _, m := range mirrors {
		if m = strings.TrimSpace(m); m != "" {
			clean = append(clean, m)
		}
	}
	return &Resolver{
		mirrors:       clean,
		prober:        prober,
		observer:      observer,
		logger:        logger,
		MaxConcurrent: defaultProbeConcurrency,
		reachable:     make(map[string]bool),
	}
}

// SetObserver replaces the progress observer.
func (r *Resolver) SetObserver(observer domain.MirrorObserver) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	if observer == nil {
		observer = domain.NoOpObserver{}
	}
	r.observer = observer
}

// Probe checks every mirror and returns the final status. A newer Probe call
// supersedes an older one; the older one's remaining results are discarded.
func (r *Resolver) Probe(ctx context.Context) domain.MirrorStatus {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.reachable = make(map[string]bool)
	r.checked = 0
	r.done = len(r.mirrors) == 0
	r.mu.Unlock()

	r.publish(gen)

	workers := r.MaxConcurrent
	if workers <= 0 {
		workers = 1
	}
	p := pool.New().WithMaxGoroutines(workers)
	for _, m := range r.mirrors {
		p.Go(func() {
			ok := ctx.Err() == nil && r.prober.Probe(ctx, m)
			r.logger.Debug("mirror probed", "mirror", m, "reachable", ok)
			r.record(gen, m, ok)
		})
	}
	p.Wait()

	status := r.Status()
	r.logger.Info("mirror probe finished", "reachable", len(status.Available), "total", status.Total)
	return status
}

func (r *Resolver) record(gen uint64, mirror string, ok bool) {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	if ok {
		r.reachable[mirror] = true
	}
	r.checked++
	r.done = r.checked == len(r.mirrors)
	r.mu.Unlock()

	r.publish(gen)
}

func (r *Resolver) publish(gen uint64) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.RLock()
	current := gen == r.gen
	r.mu.RUnlock()
	if !current {
		return
	}
	r.observer.OnMirrorStatus(r.Status())
}

// Status returns a snapshot of the current probe state.
func (r *Resolver) Status() domain.MirrorStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.MirrorStatus{
		Available: r.availableLocked(),
		Checked:   r.checked,
		Total:     len(r.mirrors),
		Done:      r.done,
	}
}

// Available returns the reachable mirrors in configured order.
func (r *Resolver) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.availableLocked()
}

func (r *Resolver) availableLocked() []string {
	out := make([]string, 0, len(r.reachable))
	for _, m := range r.mirrors {
		if r.reachable[m] {
			out = append(out, m)
		}
	}
	return out
}

// IsServable reports whether link points at a reachable mirror.
func (r *Resolver) IsServable(link string) bool {
	if link == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for m := range r.reachable {
		if strings.Contains(link, m) {
			return true
		}
	}
	return false
}
