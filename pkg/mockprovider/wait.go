package mockprovider

import (
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// notify wakes blocked waiters whenever an exchange completes. Waking swaps
// the channel so later waiters block on a fresh one.
type notify struct {
	mu sync.Mutex
	ch chan struct{}
}

func newNotify() *notify {
	return &notify{ch: make(chan struct{})}
}

func (n *notify) Wait(timeout time.Duration) {
	n.mu.Lock()
	ch := n.ch
	n.mu.Unlock()

	select {
	case <-ch:
	case <-time.After(timeout):
	}
}

func (n *notify) Notify() {
	n.mu.Lock()
	close(n.ch)
	n.ch = make(chan struct{})
	n.mu.Unlock()
}

var errWaiting = errors.New("condition not met")

// WaitForInteraction blocks until the named interaction has served at least
// count matched requests, for clients that fire asynchronously. A zero
// timeout uses the configured default.
func (s *Service) WaitForInteraction(description string, count int, timeout time.Duration) error {
	if timeout == 0 {
		timeout = s.config.WaitDuration
	}
	if _, ok := s.registry.hits(description); !ok {
		return errors.Errorf("cannot wait for interaction %q, not registered", description)
	}

	met := func() bool {
		n, _ := s.registry.hits(description)
		return n >= int64(count)
	}
	if s.waitFor(met, timeout) {
		return nil
	}
	return errors.Errorf("timeout waiting for interaction %q to be requested %d time(s)", description, count)
}

// WaitForAll blocks until every registered interaction is fulfilled.
func (s *Service) WaitForAll(timeout time.Duration) error {
	if timeout == 0 {
		timeout = s.config.WaitDuration
	}
	if s.waitFor(s.registry.allFulfilled, timeout) {
		return nil
	}

	for _, description := range s.registry.unfulfilled() {
		log.WithField("interaction", description).Info("No requests recorded")
	}
	return errors.New("timeout waiting for interactions to be met")
}

// waitFor polls met every WaitDelay until it reports true or timeout
// elapses, sleeping on the notify channel between polls.
func (s *Service) waitFor(met func() bool, timeout time.Duration) bool {
	start := time.Now()
	err := retry.Do(func() error {
		if met() {
			return nil
		}
		if timeLeft := timeout - time.Since(start); timeLeft > 0 {
			s.notify.Wait(timeLeft)
		}
		if met() {
			return nil
		}
		return errWaiting
	}, retry.Attempts(0), retry.Delay(s.config.WaitDelay), retry.DelayType(retry.FixedDelay),
		retry.RetryIf(func(error) bool {
			return time.Since(start) <= timeout
		}))
	return err == nil
}
