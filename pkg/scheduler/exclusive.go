package scheduler

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Exclusive wraps job with an in-progress flag. A run that starts while the
// previous one is still executing is skipped and reported as success.
func Exclusive(name string, job Job) Job {
	return guard(name, new(atomic.Bool), job)
}

// Exclusive is like the package-level Exclusive, but the in-progress flag is
// shared by every job wrapped under the same name on this scheduler. One
// Every loop never overlaps itself; two handles registered under one name
// can.
func (s *Scheduler) Exclusive(name string, job Job) Job {
	s.mu.Lock()
	flag, ok := s.guards[name]
	if !ok {
		flag = new(atomic.Bool)
		s.guards[name] = flag
	}
	s.mu.Unlock()

	return guard(name, flag, job)
}

func guard(name string, inProgress *atomic.Bool, job Job) Job {
	return func(ctx context.Context) error {
		if !inProgress.CompareAndSwap(false, true) {
			schedulerRunsTotal.WithLabelValues(name, "skipped").Inc()
			log.Debug().Str("job", name).Msg("Previous run still in progress - skipping")
			return nil
		}
		defer inProgress.Store(false)

		return job(ctx)
	}
}
