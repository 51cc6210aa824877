// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package cohort implements a two-level NUMA-aware mutual exclusion
// lock: a cheap, cache-local queuing lock per NUMA domain, backed by a
// single global lock that domains hand off to each other in batches
// instead of re-acquiring on every critical section. A domain that
// keeps winning its local lock rides the same global acquisition
// across several critical sections, which keeps cross-socket cache
// traffic off the global lock's line as long as the domain stays busy.
//
// The swaligndemo worker pool holds one cohort.Lock around each
// alignment's Fill and Walk calls and the per-domain RNG and metrics
// they touch, so that a burst of work landing on one domain rides the
// same global-lock acquisition instead of re-acquiring a shared mutex
// for every single alignment.
package cohort

import (
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/errors"
)

// Lock is a cohort lock with one local queuing lock per NUMA domain
// and a single global lock the domains hand off among themselves.
//
// Acquire (domain d): take the local lock L[d]; if the domain already
// owns the global lock (own_global[d]), the acquisition is done;
// otherwise take the global lock and set own_global[d].
//
// Release (domain d): if no goroutine is waiting on L[d], or the
// domain has held the global lock across starvationLimit consecutive
// hand-offs, clear own_global[d], release the global lock, reset the
// domain's starvation counter, then release L[d]. Otherwise bump the
// counter and release only L[d], passing the global lock to whichever
// goroutine is next to acquire L[d].
//
// own_global[d] and the starvation counter are written only by a
// goroutine that currently holds L[d], so they need no protection
// beyond L[d] itself.
type Lock struct {
	numDomains      int
	starvationLimit uint64

	global sync.Mutex

	local     []sync.Mutex
	waiters   []int32 // atomic: goroutines currently blocked acquiring local[d]
	ownGlobal []bool
	counters  []uint64
}

// NewLock builds a cohort lock with numDomains independent local
// locks. starvationLimit bounds how many consecutive local hand-offs
// of the global lock a single domain may make (so at most
// starvationLimit+1 consecutive critical sections) before it is forced
// to release the global lock even though a local successor is still
// waiting, so that other domains cannot be starved indefinitely.
func NewLock(numDomains int, starvationLimit uint64) (*Lock, error) {
	if numDomains <= 0 {
		return nil, errors.E("cohort: numDomains must be positive")
	}
	if starvationLimit == 0 {
		return nil, errors.E("cohort: starvationLimit must be positive")
	}
	return &Lock{
		numDomains:      numDomains,
		starvationLimit: starvationLimit,
		local:           make([]sync.Mutex, numDomains),
		waiters:         make([]int32, numDomains),
		ownGlobal:       make([]bool, numDomains),
		counters:        make([]uint64, numDomains),
	}, nil
}

// NumDomains returns the number of NUMA domains the lock was built
// with.
func (l *Lock) NumDomains() int {
	return l.numDomains
}

// Lock acquires the lock on behalf of domain. Every call to Lock must
// be matched by exactly one call to Unlock with the same domain,
// from the same goroutine, before that goroutine calls Lock again.
func (l *Lock) Lock(domain int) {
	atomic.AddInt32(&l.waiters[domain], 1)
	l.local[domain].Lock()
	atomic.AddInt32(&l.waiters[domain], -1)

	if !l.ownGlobal[domain] {
		l.global.Lock()
		l.ownGlobal[domain] = true
	}
}

// Unlock releases the lock previously acquired by Lock(domain).
func (l *Lock) Unlock(domain int) {
	successorWaiting := atomic.LoadInt32(&l.waiters[domain]) > 0
	if l.counters[domain] >= l.starvationLimit || !successorWaiting {
		l.ownGlobal[domain] = false
		l.counters[domain] = 0
		l.global.Unlock()
	} else {
		l.counters[domain]++
	}
	l.local[domain].Unlock()
}

// Counter returns the current count of consecutive local hand-offs
// domain has ridden on the global lock without releasing it. It is
// exported for tests and diagnostics; callers don't need it to use
// the lock correctly.
func (l *Lock) Counter(domain int) uint64 {
	return l.counters[domain]
}

// OwnsGlobal reports whether domain currently holds the global lock
// across hand-offs. Like Counter, this is a diagnostic, not something
// a correct caller needs to check.
func (l *Lock) OwnsGlobal(domain int) bool {
	return l.ownGlobal[domain]
}

// Waiting returns the number of goroutines currently blocked trying
// to acquire domain's local lock. Exposed for tests and contention
// monitoring.
func (l *Lock) Waiting(domain int) int {
	return int(atomic.LoadInt32(&l.waiters[domain]))
}
