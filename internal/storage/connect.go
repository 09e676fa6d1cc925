package storage

import (
	"context"
	"fmt"
	"time"
)

// connectTimeout bounds dialing and the first ping of every backend
const connectTimeout = 10 * time.Second

// Connection stages reported by ConnectError
const (
	StageConfig = "config"
	StageDial   = "dial"
	StagePing   = "ping"
)

// ConnectError reports a storage backend that could not be brought up
type ConnectError struct {
	Backend string
	Addr    string
	Stage   string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s %s failed at %s: %v", e.Backend, e.Stage, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// verify pings a freshly opened backend and closes it when the ping fails
func verify(backend, addr string, ping func(ctx context.Context) error, closeFn func()) error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := ping(ctx); err != nil {
		closeFn()
		return &ConnectError{Backend: backend, Addr: addr, Stage: StagePing, Err: err}
	}
	return nil
}
