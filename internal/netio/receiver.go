package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dantte-lp/regorus/internal/regorus"
)

// errBackoff is how long a read loop waits after an unexpected socket
// error before reading again.
const errBackoff = 250 * time.Millisecond

// Deliverer consumes frames read from a port. regorus.Engine implements
// it. Receive must not retain frame.
type Deliverer interface {
	Receive(iface regorus.Interface, frame []byte)
}

// Receiver runs one read loop per attached Port and hands every frame to
// a Deliverer. Frames from one port are delivered in arrival order; ports
// are read in parallel.
//
// Ports may be attached before or while Run is active.
type Receiver struct {
	mu      sync.Mutex
	pending []*Port
	wake    chan struct{}

	logger *slog.Logger
}

// NewReceiver creates a Receiver with no ports.
func NewReceiver(logger *slog.Logger) *Receiver {
	return &Receiver{
		wake:   make(chan struct{}, 1),
		logger: logger.With(slog.String("component", "netio.receiver")),
	}
}

// Attach schedules a read loop for p. It never blocks.
func (r *Receiver) Attach(p *Port) {
	r.mu.Lock()
	r.pending = append(r.pending, p)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run starts read loops for attached ports and delivers frames to d until
// ctx is cancelled. It returns after every read loop has exited.
func (r *Receiver) Run(ctx context.Context, d Deliverer) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		for _, p := range r.takePending() {
			r.logger.Debug("read loop started", slog.String("interface", p.Name()))
			wg.Go(func() {
				r.recvLoop(ctx, p, d)
			})
		}

		select {
		case <-ctx.Done():
			return nil
		case <-r.wake:
		}
	}
}

func (r *Receiver) takePending() []*Port {
	r.mu.Lock()
	defer r.mu.Unlock()

	ports := r.pending
	r.pending = nil
	return ports
}

// recvLoop reads frames from one port until ctx is cancelled or the
// socket is closed. Read errors are logged and do not stop the loop.
func (r *Receiver) recvLoop(ctx context.Context, p *Port, d Deliverer) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := r.recvOne(p, d)
		switch {
		case err == nil, errors.Is(err, ErrReadTimeout):
			continue
		case errors.Is(err, ErrSocketClosed):
			r.logger.Debug("read loop stopped, socket closed", slog.String("interface", p.Name()))
			return
		}

		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("recv error",
			slog.String("interface", p.Name()),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(errBackoff):
		}
	}
}

// recvOne reads a single frame into a pooled buffer and delivers it.
// Frames the host sent itself are skipped.
func (r *Receiver) recvOne(p *Port, d Deliverer) error {
	bufp, ok := regorus.FramePool.Get().(*[]byte)
	if !ok {
		return fmt.Errorf("recv on %s: %w", p.Name(), ErrPoolType)
	}
	defer regorus.FramePool.Put(bufp)

	n, meta, err := p.conn.ReadFrame(*bufp)
	if err != nil {
		return err
	}
	if meta.Outgoing {
		return nil
	}

	d.Receive(p, (*bufp)[:n])
	return nil
}
