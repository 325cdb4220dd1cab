package link

import (
	"sync"
	"time"
)

const pipeDepth = 256

// PipeConn is one end of an in-memory frame pipe.
type PipeConn struct {
	in   chan []byte
	peer *PipeConn

	mu     sync.Mutex
	drop   func([]byte) bool
	closed chan struct{}
	once   sync.Once
}

// Pipe returns two connected ends. Frames written to one are read from the other.
func Pipe() (*PipeConn, *PipeConn) {
	a := &PipeConn{in: make(chan []byte, pipeDepth), closed: make(chan struct{})}
	b := &PipeConn{in: make(chan []byte, pipeDepth), closed: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

// SetDrop installs a filter on outgoing frames; frames it reports true for
// are silently lost.
func (p *PipeConn) SetDrop(fn func([]byte) bool) {
	p.mu.Lock()
	p.drop = fn
	p.mu.Unlock()
}

func (p *PipeConn) WriteFrame(b []byte) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	p.mu.Lock()
	drop := p.drop
	p.mu.Unlock()
	if drop != nil && drop(b) {
		return nil
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	select {
	case p.peer.in <- buf:
	case <-p.peer.closed:
	default:
		// full queue behaves like a congested wire
	}
	return nil
}

func (p *PipeConn) ReadFrame(deadline time.Time) ([]byte, error) {
	wait := time.Until(deadline)
	if wait <= 0 {
		select {
		case b := <-p.in:
			return b, nil
		default:
			return nil, ErrTimeout
		}
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case b := <-p.in:
		return b, nil
	case <-p.closed:
		return nil, ErrClosed
	case <-t.C:
		return nil, ErrTimeout
	}
}

func (p *PipeConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
