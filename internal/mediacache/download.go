package mediacache

import (
	"context"
	"errors"
	"sync/atomic"
)

type State int32

const (
	StatePending State = iota
	StateDownloading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDownloading:
		return "downloading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

var ErrNotDone = errors.New("download not finished")

// Download is a shared handle for one in-flight or completed fetch. Every
// queue entry referencing the same cache key holds the same *Download and
// observes the same outcome.
type Download struct {
	key   string
	state atomic.Int32

	// path and err are written exactly once, before done is closed
	done chan struct{}
	path string
	err  error
}

func newDownload(key string) *Download {
	return &Download{key: key, done: make(chan struct{})}
}

func (d *Download) Key() string { return d.key }

func (d *Download) State() State { return State(d.state.Load()) }

// Ready is closed once the download has resolved or failed.
func (d *Download) Ready() <-chan struct{} { return d.done }

// Result returns the local path once ready, the capture failure once failed,
// or ErrNotDone while the fetch is still running.
func (d *Download) Result() (string, error) {
	select {
	case <-d.done:
		return d.path, d.err
	default:
		return "", ErrNotDone
	}
}

// Await blocks until the download completes or ctx is cancelled.
func (d *Download) Await(ctx context.Context) (string, error) {
	select {
	case <-d.done:
		return d.path, d.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (d *Download) resolve(path string) {
	d.path = path
	d.state.Store(int32(StateReady))
	close(d.done)
}

func (d *Download) reject(err error) {
	d.err = err
	d.state.Store(int32(StateFailed))
	close(d.done)
}
