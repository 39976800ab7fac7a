// Package stream paces event delivery to a single streaming connection.
// Producers hand events to a Pump without blocking; a single consumer
// goroutine writes them in order with a small delay between frames so a
// burst of agent events renders as a readable feed instead of one clump.
package stream

import (
	"log/slog"
	"sync"
	"time"
)

const (
	defaultQueueSize = 1024
	defaultSendDelay = 20 * time.Millisecond
)

// Transport is the write side of a streaming connection. WriteJSON must
// eventually return; websocket transports should arm write deadlines.
type Transport interface {
	WriteJSON(v any) error
}

// Pump fans events from any number of producers into ordered writes on one
// transport. Send never blocks: when the queue is full the event is dropped
// and counted. A transport failure stops writing but the pump keeps
// consuming, so producers and Shutdown never hang on a dead connection.
type Pump struct {
	transport Transport
	queue     chan any
	sendDelay time.Duration

	finish     chan struct{}
	cancel     chan struct{}
	done       chan struct{}
	finishOnce sync.Once
	cancelOnce sync.Once

	// broken is only touched by the consumer goroutine.
	broken bool

	mu      sync.Mutex
	dropped int
}

func NewPump(t Transport) *Pump {
	return newPump(t, defaultQueueSize, defaultSendDelay)
}

func newPump(t Transport, queueSize int, sendDelay time.Duration) *Pump {
	p := &Pump{
		transport: t,
		queue:     make(chan any, queueSize),
		sendDelay: sendDelay,
		finish:    make(chan struct{}),
		cancel:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go p.run()
	return p
}

// Send enqueues one event for delivery. It never blocks; events beyond the
// queue capacity are dropped.
func (p *Pump) Send(v any) {
	select {
	case p.queue <- v:
	default:
		p.mu.Lock()
		p.dropped++
		n := p.dropped
		p.mu.Unlock()
		slog.Warn("stream queue full, dropping event", "dropped", n)
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (p *Pump) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Finish tells the pump no further Sends are coming: it drains what is
// queued and exits.
func (p *Pump) Finish() {
	p.finishOnce.Do(func() { close(p.finish) })
}

// Shutdown finishes the pump and waits up to grace for the queue to drain,
// then cancels whatever is left and waits for the consumer to exit.
func (p *Pump) Shutdown(grace time.Duration) {
	p.Finish()
	select {
	case <-p.done:
		return
	case <-time.After(grace):
	}
	p.cancelOnce.Do(func() { close(p.cancel) })
	<-p.done
}

func (p *Pump) run() {
	defer close(p.done)

	for {
		select {
		case <-p.cancel:
			return
		case v := <-p.queue:
			p.write(v)
		case <-p.finish:
			p.drain()
			return
		}
	}
}

// drain delivers everything already queued, still honoring cancel so a
// slow transport cannot stall shutdown.
func (p *Pump) drain() {
	for {
		select {
		case <-p.cancel:
			return
		case v := <-p.queue:
			p.write(v)
		default:
			return
		}
	}
}

func (p *Pump) write(v any) {
	if p.broken {
		return
	}
	if err := p.transport.WriteJSON(v); err != nil {
		p.broken = true
		slog.Warn("stream write failed, discarding remaining events", "error", err)
		return
	}
	if p.sendDelay > 0 {
		time.Sleep(p.sendDelay)
	}
}
