package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/observability"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol/fragment"
	"github.com/rs/zerolog/log"
)

var (
	ErrRetriesExhausted = errors.New("session: retries exhausted")
	ErrPayloadTooLarge  = errors.New("session: payload too large")
)

// Transmitter sends one fragment as a data frame.
type Transmitter interface {
	SendFrame(ctx context.Context, payload []byte) error
}

// AckWaiter is satisfied by *Listener.
type AckWaiter interface {
	WaitForAck(ctx context.Context, tensorID, expected uint32, timeout time.Duration) (Outcome, uint32, error)
}

// Result summarizes one transfer.
type Result struct {
	TensorID       uint32
	TotalLength    int
	TotalFragments uint32
	Transmissions  int
	Timeouts       int
	Nacks          int
	Resyncs        int
	Duration       time.Duration
}

type Sender struct {
	tx     Transmitter
	acks   AckWaiter
	cfg    Config
	layout fragment.Layout
	sleep  func(context.Context, time.Duration) error
	rng    *rand.Rand
}

func NewSender(tx Transmitter, acks AckWaiter, cfg Config) (*Sender, error) {
	if tx == nil || acks == nil {
		return nil, errors.New("session: sender needs a transmitter and an ack waiter")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	layout, _ := fragment.NewLayout(cfg.FragmentSize)
	return &Sender{
		tx:     tx,
		acks:   acks,
		cfg:    cfg,
		layout: layout,
		sleep:  sleepContext,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (s *Sender) Layout() fragment.Layout {
	return s.layout
}

// Send runs the stop-and-wait loop until every fragment of payload has been
// acknowledged in order. With MaxAttempts zero it only returns early on a
// transport error or ctx cancellation.
func (s *Sender) Send(ctx context.Context, tensorID uint32, payload []byte) (Result, error) {
	start := time.Now()
	res := Result{TensorID: tensorID, TotalLength: len(payload)}
	if int64(len(payload)) > math.MaxUint32 {
		return res, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	total := s.layout.Count(len(payload))
	res.TotalFragments = total

	logger := log.With().Uint32("tensor_id", tensorID).Uint32("fragments", total).Logger()
	logger.Info().Int("bytes", len(payload)).Msg("transfer start")

	finish := func(err error) (Result, error) {
		res.Duration = time.Since(start)
		observability.RecordTransfer(err == nil, res.Duration)
		if err != nil {
			logger.Warn().Err(err).Int("transmissions", res.Transmissions).Msg("transfer aborted")
			return res, err
		}
		logger.Info().
			Int("transmissions", res.Transmissions).
			Int("timeouts", res.Timeouts).
			Int("nacks", res.Nacks).
			Dur("duration", res.Duration).
			Msg("transfer done")
		return res, nil
	}

	current := uint32(0)
	attempts := 0
	for current < total {
		if s.cfg.MaxAttempts > 0 && attempts >= s.cfg.MaxAttempts {
			return finish(fmt.Errorf("%w: fragment %d after %d attempts", ErrRetriesExhausted, current, attempts))
		}
		if attempts > 0 && s.cfg.Backoff.InitialDelay > 0 {
			if err := s.sleep(ctx, NextBackoffDelay(s.cfg.Backoff, attempts, s.rng)); err != nil {
				return finish(err)
			}
		}

		wire, err := s.layout.Build(tensorID, current, payload)
		if err != nil {
			return finish(err)
		}
		if err := s.tx.SendFrame(ctx, wire); err != nil {
			return finish(fmt.Errorf("send fragment %d: %w", current, err))
		}
		observability.RecordFragmentSent(attempts > 0)
		res.Transmissions++
		attempts++

		outcome, index, err := s.acks.WaitForAck(ctx, tensorID, current, s.cfg.AckTimeout)
		if err != nil {
			return finish(fmt.Errorf("wait ack for fragment %d: %w", current, err))
		}
		observability.RecordAckOutcome(outcome.String())

		switch outcome {
		case OutcomeAck:
			logger.Debug().Uint32("fragment", current).Msg("ack")
			current++
			attempts = 0
		case OutcomeNack:
			res.Nacks++
			switch {
			case index == current:
				logger.Debug().Uint32("fragment", current).Msg("nack, resending")
			case index == total:
				// receiver already holds everything; our final ack was lost
				logger.Debug().Uint32("fragment", current).Msg("nack reports transfer complete")
				current = total
			case index > total:
				// a corrupt index is not trusted; resend the current fragment
				logger.Warn().Uint32("fragment", current).Uint32("nack_index", index).Msg("nack index out of range")
			default:
				logger.Debug().Uint32("from", current).Uint32("to", index).Msg("resync")
				res.Resyncs++
				current = index
				attempts = 0
			}
		default:
			res.Timeouts++
			logger.Debug().Uint32("fragment", current).Msg("ack timeout")
		}
	}
	return finish(nil)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
