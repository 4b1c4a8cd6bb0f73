package control

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("control channel closed")

// Request is a command received by the worker. Exactly one reply must be
// sent for every request.
type Request struct {
	Command Command
	reply   chan uint32
}

// Reply answers the request. It never blocks.
func (r Request) Reply(word uint32) {
	select {
	case r.reply <- word:
	default:
	}
}

// Channel is a rendezvous between clients and one worker: a command is
// handed over only when the worker picks it up, and the client blocks
// until the worker answers.
type Channel struct {
	requests  chan Request
	done      chan struct{}
	closeOnce sync.Once
}

func NewChannel() *Channel {
	return &Channel{
		requests: make(chan Request),
		done:     make(chan struct{}),
	}
}

// Send delivers a command and waits for the reply.
func (c *Channel) Send(ctx context.Context, cmd Command) (uint32, error) {
	request := Request{
		Command: cmd,
		reply:   make(chan uint32, 1),
	}
	select {
	case c.requests <- request:
	case <-c.done:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case word := <-request.reply:
		return word, nil
	case <-c.done:
		// the worker replies before closing
		select {
		case word := <-request.reply:
			return word, nil
		default:
			return 0, ErrClosed
		}
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Poll returns a pending request without blocking.
func (c *Channel) Poll() (Request, bool) {
	select {
	case request := <-c.requests:
		return request, true
	default:
		return Request{}, false
	}
}

// Wait blocks until a request arrives or ctx is done.
func (c *Channel) Wait(ctx context.Context) (Request, error) {
	select {
	case request := <-c.requests:
		return request, nil
	case <-ctx.Done():
		return Request{}, ctx.Err()
	}
}

// Close is called by the worker once it stops serving. Pending and future
// Send calls fail with ErrClosed.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Done is closed once the worker stopped serving.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}
