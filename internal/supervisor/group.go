package supervisor

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/natsfixture/internal/options"
	"github.com/nerrad567/natsfixture/internal/portalloc"
)

// reserved tracks ports picked by NextFree for supervisors in this
// process, so instances started in parallel never pick the same one.
var reserved = struct {
	sync.Mutex
	byPort map[int]*Supervisor
}{byPort: make(map[int]*Supervisor)}

// reservePort finds a free port above base that no other supervisor holds.
func reservePort(s *Supervisor, base int) (int, error) {
	reserved.Lock()
	defer reserved.Unlock()

	for {
		port, err := portalloc.NextFree(base)
		if err != nil {
			return 0, err
		}
		if owner, taken := reserved.byPort[port]; !taken || owner == s {
			reserved.byPort[port] = s
			return port, nil
		}
		base = port
	}
}

// releasePort drops any reservation held by s.
func releasePort(s *Supervisor) {
	reserved.Lock()
	defer reserved.Unlock()
	for port, owner := range reserved.byPort {
		if owner == s {
			delete(reserved.byPort, port)
		}
	}
}

// Launch creates a Supervisor and starts it when NATS_AUTOSTART is true.
// A failed start is cleaned up before the error is returned.
func Launch(ctx context.Context, cfg Config) (*Supervisor, error) {
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.loadLayers(); err != nil {
		return nil, err
	}

	autostart, err := s.store.Bool(options.Autostart)
	if err != nil {
		return nil, err
	}
	if !autostart {
		return s, nil
	}

	if err := s.Start(ctx); err != nil {
		s.Stop()
		return nil, err
	}
	return s, nil
}

// StartAll starts every supervisor in parallel. If any start fails, all
// of them are stopped and the first error is returned.
func StartAll(ctx context.Context, sups ...*Supervisor) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sups {
		g.Go(func() error {
			return s.Start(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		StopAll(sups...)
		return err
	}
	return nil
}

// StopAll stops every supervisor in parallel and waits for all of them.
func StopAll(sups ...*Supervisor) {
	var wg sync.WaitGroup
	for _, s := range sups {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()
}
