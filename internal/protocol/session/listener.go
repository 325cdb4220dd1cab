package session

import (
	"context"
	"time"

	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/link"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol/ack"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol/frame"
)

type Outcome int

const (
	OutcomeTimeout Outcome = iota
	OutcomeAck
	OutcomeNack
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeNack:
		return "nack"
	default:
		return "timeout"
	}
}

// FrameAwaiter is the capture half of a link.
type FrameAwaiter interface {
	AwaitFrame(ctx context.Context, match link.Predicate, timeout time.Duration) (frame.Frame, bool, error)
}

// Listener waits for acknowledgment records. accept narrows which frames
// count as acknowledgments (EtherType, addressing).
type Listener struct {
	src    FrameAwaiter
	accept link.Predicate
}

func NewListener(src FrameAwaiter, accept link.Predicate) *Listener {
	return &Listener{src: src, accept: accept}
}

// ListenerFor listens for ACK frames sent to l by its configured peer.
func ListenerFor(l *link.Link) *Listener {
	return NewListener(l, l.FromPeer(l.Config().AckType))
}

// WaitForAck performs one bounded wait for a record addressed to tensorID.
// Records for other tensors and records too short to decode are skipped.
// On timeout the returned index is expected.
func (l *Listener) WaitForAck(ctx context.Context, tensorID, expected uint32, timeout time.Duration) (Outcome, uint32, error) {
	var rec ack.Record
	match := func(f frame.Frame) bool {
		if l.accept != nil && !l.accept(f) {
			return false
		}
		r, err := ack.Decode(f.Payload)
		if err != nil || r.TensorID != tensorID {
			return false
		}
		rec = r
		return true
	}
	_, ok, err := l.src.AwaitFrame(ctx, match, timeout)
	if err != nil {
		return OutcomeTimeout, expected, err
	}
	if !ok {
		return OutcomeTimeout, expected, nil
	}
	if rec.FragmentIndex == expected && rec.IsAck() {
		return OutcomeAck, rec.FragmentIndex, nil
	}
	return OutcomeNack, rec.FragmentIndex, nil
}
