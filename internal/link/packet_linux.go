//go:build linux

package link

import (
	"net"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// PacketConn is an AF_PACKET raw socket bound to one interface.
type PacketConn struct {
	fd      int
	ifindex int
	dst     net.HardwareAddr
	buf     []byte
}

// OpenPacket opens a raw socket on cfg.Interface that only surfaces frames of
// the configured ether types. It needs CAP_NET_RAW.
func OpenPacket(cfg Config) (*PacketConn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ifi, err := net.InterfaceByName(cfg.Interface)
	if err != nil {
		return nil, errors.Wrapf(err, "lookup interface %q", cfg.Interface)
	}
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, errors.Wrap(err, "open packet socket")
	}
	c := &PacketConn{fd: fd, ifindex: ifi.Index, dst: cfg.Dst, buf: make([]byte, 65536)}

	if err := c.attachFilter(cfg.DataType, cfg.RequestType, cfg.AckType); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	sa := &unix.SockaddrLinklayer{Protocol: htons(unix.ETH_P_ALL), Ifindex: ifi.Index}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrapf(err, "bind %s", cfg.Interface)
	}
	return c, nil
}

func (c *PacketConn) attachFilter(types ...uint16) error {
	raw, err := EtherTypeFilter(types...)
	if err != nil {
		return err
	}
	filter := make([]unix.SockFilter, len(raw))
	for i, ins := range raw {
		filter[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	prog := unix.SockFprog{Len: uint16(len(filter)), Filter: &filter[0]}
	if err := unix.SetsockoptSockFprog(c.fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &prog); err != nil {
		return errors.Wrap(err, "attach ether type filter")
	}
	return nil
}

func (c *PacketConn) WriteFrame(b []byte) error {
	sa := &unix.SockaddrLinklayer{Ifindex: c.ifindex, Halen: uint8(len(c.dst))}
	copy(sa.Addr[:], c.dst)
	if err := unix.Sendto(c.fd, b, 0, sa); err != nil {
		return errors.Wrap(err, "sendto")
	}
	return nil
}

func (c *PacketConn) ReadFrame(deadline time.Time) ([]byte, error) {
	for {
		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, ErrTimeout
		}
		tv := unix.NsecToTimeval(wait.Nanoseconds())
		if tv.Sec == 0 && tv.Usec == 0 {
			tv.Usec = 1
		}
		if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			return nil, errors.Wrap(err, "set receive timeout")
		}
		n, from, err := unix.Recvfrom(c.fd, c.buf, 0)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "recvfrom")
		}
		if ll, ok := from.(*unix.SockaddrLinklayer); ok && ll.Pkttype == unix.PACKET_OUTGOING {
			continue
		}
		out := make([]byte, n)
		copy(out, c.buf[:n])
		return out, nil
	}
}

func (c *PacketConn) Close() error {
	return unix.Close(c.fd)
}

func htons(v uint16) uint16 {
	var probe uint16 = 1
	if *(*byte)(unsafe.Pointer(&probe)) == 1 {
		return v<<8 | v>>8
	}
	return v
}
