// Package peer is the receiving end of a tensor transfer: it reassembles
// fragments in order and answers each with an ACK or a NACK carrying the
// index it expects next.
package peer

import (
	"context"
	"fmt"
	"time"

	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/link"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/observability"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol/ack"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol/fragment"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval = time.Second
	// MaxPrealloc caps the buffer reserved from a first header's total length.
	MaxPrealloc = 64 << 20
)

// Tensor is one fully reassembled payload.
type Tensor struct {
	ID      uint32
	Payload []byte
}

type Receiver struct {
	link     *link.Link
	onTensor func(Tensor)
	poll     time.Duration

	active    bool
	delivered bool
	tensorID  uint32
	total     uint32
	length    uint32
	expected  uint32
	buf       []byte
}

func NewReceiver(l *link.Link, onTensor func(Tensor)) *Receiver {
	return &Receiver{link: l, onTensor: onTensor, poll: DefaultPollInterval}
}

// Serve handles data frames until ctx is cancelled.
func (r *Receiver) Serve(ctx context.Context) error {
	match := r.link.FromPeer(r.link.Config().DataType)
	for {
		f, ok, err := r.link.AwaitFrame(ctx, match, r.poll)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !ok {
			continue
		}
		if err := r.Handle(ctx, f.Payload); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Handle processes one data frame payload. Malformed fragments are dropped
// without a reply.
func (r *Receiver) Handle(ctx context.Context, payload []byte) error {
	h, body, err := fragment.Decode(payload)
	if err != nil {
		observability.RecordFragmentReceived("invalid")
		log.Debug().Err(err).Int("len", len(payload)).Msg("peer: dropping fragment")
		return nil
	}

	if h.IsFirst() {
		r.start(h)
		r.buf = append(r.buf, body...)
		observability.RecordFragmentReceived("accepted")
		if err := r.reply(ctx, h.TensorID, 0, ack.StatusAck); err != nil {
			return err
		}
		r.expected = 1
		r.maybeDeliver()
		return nil
	}

	if !r.active || h.TensorID != r.tensorID {
		// nothing buffered for this tensor; ask for it from the start
		observability.RecordFragmentReceived("unknown_transfer")
		return r.reply(ctx, h.TensorID, 0, ack.StatusNack)
	}
	if h.Index != r.expected {
		observability.RecordFragmentReceived("out_of_order")
		log.Debug().
			Uint32("tensor_id", h.TensorID).
			Uint32("got", h.Index).
			Uint32("expected", r.expected).
			Msg("peer: fragment out of order")
		return r.reply(ctx, h.TensorID, r.expected, ack.StatusNack)
	}

	r.buf = append(r.buf, body...)
	observability.RecordFragmentReceived("accepted")
	if err := r.reply(ctx, h.TensorID, h.Index, ack.StatusAck); err != nil {
		return err
	}
	r.expected = h.Index + 1
	r.maybeDeliver()
	return nil
}

// RequestTransfer asks the host to send the input tensor.
func (r *Receiver) RequestTransfer(ctx context.Context) error {
	return r.link.Emit(ctx, r.link.Config().RequestType, []byte{0})
}

// Expected returns the active tensor id and the next index it waits for.
func (r *Receiver) Expected() (uint32, uint32, bool) {
	return r.tensorID, r.expected, r.active
}

func (r *Receiver) start(h fragment.Header) {
	if r.active && !r.delivered && r.tensorID != h.TensorID {
		log.Warn().
			Uint32("abandoned", r.tensorID).
			Uint32("tensor_id", h.TensorID).
			Msg("peer: new transfer before previous completed")
	}
	r.active = true
	r.delivered = false
	r.tensorID = h.TensorID
	r.total = h.Total
	r.length = h.TotalLength
	r.buf = make([]byte, 0, min(int(h.TotalLength), MaxPrealloc))
}

// maybeDeliver hands off a complete tensor once. The transfer stays active
// so a resent final fragment is answered with NACK(total).
func (r *Receiver) maybeDeliver() {
	if r.delivered || r.expected < r.total {
		return
	}
	r.delivered = true
	if uint32(len(r.buf)) != r.length {
		log.Warn().
			Uint32("tensor_id", r.tensorID).
			Int("got", len(r.buf)).
			Uint32("declared", r.length).
			Msg("peer: reassembled length differs from header")
	}
	log.Info().Uint32("tensor_id", r.tensorID).Int("bytes", len(r.buf)).Msg("peer: tensor received")
	if r.onTensor != nil {
		r.onTensor(Tensor{ID: r.tensorID, Payload: r.buf})
	}
	r.buf = nil
}

func (r *Receiver) reply(ctx context.Context, tensorID, index uint32, status uint8) error {
	rec := ack.Record{TensorID: tensorID, FragmentIndex: index, Status: status}
	if err := r.link.Emit(ctx, r.link.Config().AckType, ack.Encode(rec)); err != nil {
		return fmt.Errorf("peer: send ack: %w", err)
	}
	return nil
}
