// Package link moves protocol payloads over raw Ethernet II frames.
package link

import (
	"bytes"
	"context"
	"net"
	"time"

	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol/frame"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const readSlice = 100 * time.Millisecond

var (
	ErrTimeout = errors.New("link: read timeout")
	ErrClosed  = errors.New("link: closed")
)

// Conn is a raw frame endpoint. ReadFrame returns ErrTimeout once deadline
// passes without a frame.
type Conn interface {
	WriteFrame(b []byte) error
	ReadFrame(deadline time.Time) ([]byte, error)
	Close() error
}

// Predicate selects frames in AwaitFrame. Frames it rejects are dropped.
type Predicate func(frame.Frame) bool

type Config struct {
	Interface   string
	Dst         net.HardwareAddr
	Src         net.HardwareAddr
	DataType    uint16
	RequestType uint16
	AckType     uint16
	// Delay is slept after every data frame so a slow receiver keeps up.
	Delay time.Duration
}

func DefaultConfig() Config {
	return Config{
		DataType:    protocol.EtherTypeData,
		RequestType: protocol.EtherTypeRequest,
		AckType:     protocol.EtherTypeAck,
		Delay:       5 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if len(c.Dst) != frame.AddressLen {
		return errors.Wrapf(frame.ErrInvalidAddress, "destination %q", c.Dst.String())
	}
	if len(c.Src) != frame.AddressLen {
		return errors.Wrapf(frame.ErrInvalidAddress, "source %q", c.Src.String())
	}
	if c.DataType == 0 || c.AckType == 0 || c.RequestType == 0 {
		return errors.New("link: ether types must be set")
	}
	if c.Delay < 0 {
		return errors.New("link: delay must not be negative")
	}
	return nil
}

// Link addresses every frame it writes from Src to Dst.
type Link struct {
	conn  Conn
	cfg   Config
	sleep func(context.Context, time.Duration) error
}

func New(conn Conn, cfg Config) (*Link, error) {
	if conn == nil {
		return nil, errors.New("link: nil conn")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Link{conn: conn, cfg: cfg, sleep: sleepContext}, nil
}

func (l *Link) Config() Config {
	return l.cfg
}

// SendFrame writes payload as a data frame and then waits the pacing delay.
func (l *Link) SendFrame(ctx context.Context, payload []byte) error {
	if err := l.Emit(ctx, l.cfg.DataType, payload); err != nil {
		return err
	}
	if l.cfg.Delay > 0 {
		return l.sleep(ctx, l.cfg.Delay)
	}
	return nil
}

// Emit writes one frame of the given type without pacing.
func (l *Link) Emit(ctx context.Context, etherType uint16, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := frame.Encode(frame.Frame{
		Dst:       l.cfg.Dst,
		Src:       l.cfg.Src,
		EtherType: etherType,
		Payload:   payload,
	})
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}
	if err := l.conn.WriteFrame(b); err != nil {
		return errors.Wrapf(err, "write frame type=%#04x", etherType)
	}
	return nil
}

// AwaitFrame reads until match accepts a frame, the timeout elapses, or ctx
// is done. A timeout is reported as ok=false with a nil error.
func (l *Link) AwaitFrame(ctx context.Context, match Predicate, timeout time.Duration) (frame.Frame, bool, error) {
	deadline := time.Now().Add(timeout)
	ctxBound := false
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline, ctxBound = d, true
	}
	for {
		if err := ctx.Err(); err != nil {
			return frame.Frame{}, false, err
		}
		now := time.Now()
		if !now.Before(deadline) {
			if ctxBound {
				<-ctx.Done()
				return frame.Frame{}, false, ctx.Err()
			}
			return frame.Frame{}, false, nil
		}
		// short reads keep cancellation responsive on conns that ignore ctx
		until := deadline
		if s := now.Add(readSlice); s.Before(until) {
			until = s
		}
		raw, err := l.conn.ReadFrame(until)
		if errors.Is(err, ErrTimeout) {
			continue
		}
		if err != nil {
			return frame.Frame{}, false, errors.Wrap(err, "read frame")
		}
		f, err := frame.Decode(raw)
		if err != nil {
			log.Debug().Err(err).Int("len", len(raw)).Msg("link: dropping undecodable frame")
			continue
		}
		if match == nil || match(f) {
			return f, true, nil
		}
	}
}

// FromPeer accepts frames of etherType sent by the configured destination
// to this end's source address.
func (l *Link) FromPeer(etherType uint16) Predicate {
	return func(f frame.Frame) bool {
		return f.EtherType == etherType &&
			bytes.Equal(f.Src, l.cfg.Dst) &&
			bytes.Equal(f.Dst, l.cfg.Src)
	}
}

func (l *Link) Close() error {
	return l.conn.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
