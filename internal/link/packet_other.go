//go:build !linux

package link

import (
	"time"

	"github.com/pkg/errors"
)

var ErrUnsupportedPlatform = errors.New("link: raw packet sockets need linux")

type PacketConn struct{}

func OpenPacket(cfg Config) (*PacketConn, error) {
	return nil, ErrUnsupportedPlatform
}

func (c *PacketConn) WriteFrame(b []byte) error {
	return ErrUnsupportedPlatform
}

func (c *PacketConn) ReadFrame(deadline time.Time) ([]byte, error) {
	return nil, ErrUnsupportedPlatform
}

func (c *PacketConn) Close() error {
	return nil
}
