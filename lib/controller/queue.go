// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import "sync"

// job is one pending control message: the identity of the connection
// it arrived on (empty when no reply is possible) and the raw body.
type job struct {
	identity string
	raw      []byte
}

// jobQueue is an unbounded FIFO shared between the transport's receive
// context and the dispatch goroutine. The transport usually delivers
// from its own goroutines, so the queue locks even though pops all
// happen on the dispatch side.
type jobQueue struct {
	mu   sync.Mutex
	jobs []job
}

// push appends a job.
func (q *jobQueue) push(j job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, j)
}

// pop removes and returns the oldest job. Non-blocking: returns false
// when the queue is empty. The vacated slot is zeroed so the popped
// payload does not stay reachable through the backing array.
func (q *jobQueue) pop() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return job{}, false
	}
	j := q.jobs[0]
	q.jobs[0] = job{}
	q.jobs = q.jobs[1:]
	return j, true
}

// pending returns the queued job count.
func (q *jobQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
