// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package sync

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var notifierWakeups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hummingbird",
		Subsystem: "syncapi",
		Name:      "notifier_wakeups_total",
		Help:      "Number of waiter completions, by cause",
	},
	[]string{"cause"},
)

var registerNotifierMetrics sync.Once

func init() {
	registerNotifierMetrics.Do(func() {
		prometheus.MustRegister(notifierWakeups)
	})
}

// Notifier wakes up sleeping /sync requests when new data may exist for a
// user. It does not say what the data is; a woken request re-reads the
// store, which is safe because mutations advance the global sequence before
// NotifyUser is called.
type Notifier struct {
	// Protects waiters.
	streamLock sync.Mutex
	waiters    map[string][]*waiter
}

// waiter is a one-shot signal. The channel is closed at most once; the
// Once makes signal-then-timeout (and the reverse) idempotent.
type waiter struct {
	ch   chan struct{}
	once sync.Once
}

func (w *waiter) complete() {
	w.once.Do(func() { close(w.ch) })
}

func NewNotifier() *Notifier {
	return &Notifier{
		waiters: make(map[string][]*waiter),
	}
}

// NotifyUser signals every waiter currently registered for the user. The
// snapshot and the clear happen in one step under the lock: a waiter that
// registers after that is not signalled by this call, and does not need to
// be — the change it cares about is already visible, so its own sync pass
// will pick it up.
func (n *Notifier) NotifyUser(userID string) {
	n.streamLock.Lock()
	ws := n.waiters[userID]
	delete(n.waiters, userID)
	n.streamLock.Unlock()
	for _, w := range ws {
		w.complete()
	}
}

// Listener is a registered wakeup signal for one user's /sync request.
// GetListener is the serialization point of the long-poll path: any
// NotifyUser call that starts after GetListener returns is guaranteed to
// signal this listener, so callers register first, re-check the store,
// and only then Wait. A mutation landing before registration is caught
// by the re-check; one landing after it is caught by the signal.
type Listener struct {
	notifier *Notifier
	userID   string
	w        *waiter
}

// GetListener registers a listener for the user. The caller must Close it.
func (n *Notifier) GetListener(userID string) *Listener {
	w := &waiter{ch: make(chan struct{})}
	n.streamLock.Lock()
	n.waiters[userID] = append(n.waiters[userID], w)
	n.streamLock.Unlock()
	return &Listener{notifier: n, userID: userID, w: w}
}

// Wait blocks until the listener is signalled, the timeout elapses, or
// ctx is cancelled. A signal that arrived before Wait was called returns
// immediately.
func (l *Listener) Wait(ctx context.Context, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-l.w.ch:
		notifierWakeups.WithLabelValues("notify").Inc()
	case <-timer.C:
		notifierWakeups.WithLabelValues("timeout").Inc()
	case <-ctx.Done():
		notifierWakeups.WithLabelValues("cancel").Inc()
	}
}

// Close completes and deregisters the listener. Idempotent with a wake.
func (l *Listener) Close() {
	l.w.complete()
	l.notifier.removeWaiter(l.userID, l.w)
}

// WaitForEvents registers, waits and deregisters in one call, for callers
// with no work to do between registration and the wait.
func (n *Notifier) WaitForEvents(ctx context.Context, userID string, timeout time.Duration) {
	l := n.GetListener(userID)
	defer l.Close()
	l.Wait(ctx, timeout)
}

// WaiterCount reports how many waiters are registered for a user. Test
// hook.
func (n *Notifier) WaiterCount(userID string) int {
	n.streamLock.Lock()
	defer n.streamLock.Unlock()
	return len(n.waiters[userID])
}

func (n *Notifier) removeWaiter(userID string, target *waiter) {
	n.streamLock.Lock()
	defer n.streamLock.Unlock()
	ws := n.waiters[userID]
	for i, w := range ws {
		if w == target {
			n.waiters[userID] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(n.waiters[userID]) == 0 {
		delete(n.waiters, userID)
	}
}
