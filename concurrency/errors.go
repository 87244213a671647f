// Package concurrency provides the lock-free queueing and worker-dispatch
// primitives shared by the query manager's worker pool.
package concurrency

import "errors"

// ErrExecutorClosed is returned by Submit once the executor has begun shutdown.
var ErrExecutorClosed = errors.New("concurrency: executor closed")
