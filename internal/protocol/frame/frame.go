package frame

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/netstack/tcpip"
	"github.com/google/netstack/tcpip/header"
)

const (
	HeaderLen  = header.EthernetMinimumSize
	AddressLen = header.EthernetAddressSize
	// MaxPayloadLen is the largest payload an untagged Ethernet II frame carries.
	MaxPayloadLen = 1500
)

var (
	ErrShortFrame      = errors.New("frame: short frame")
	ErrInvalidAddress  = errors.New("frame: invalid hardware address")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Frame is one Ethernet II frame.
type Frame struct {
	Dst       net.HardwareAddr
	Src       net.HardwareAddr
	EtherType uint16
	Payload   []byte
}

func Encode(f Frame) ([]byte, error) {
	if len(f.Dst) != AddressLen || len(f.Src) != AddressLen {
		return nil, ErrInvalidAddress
	}
	if len(f.Payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(f.Payload))
	}
	buf := make([]byte, HeaderLen+len(f.Payload))
	eth := header.Ethernet(buf)
	eth.Encode(&header.EthernetFields{
		SrcAddr: tcpip.LinkAddress(f.Src),
		DstAddr: tcpip.LinkAddress(f.Dst),
		Type:    tcpip.NetworkProtocolNumber(f.EtherType),
	})
	copy(buf[HeaderLen:], f.Payload)
	return buf, nil
}

// Decode parses b without copying; the returned payload aliases b.
func Decode(b []byte) (Frame, error) {
	if len(b) < HeaderLen {
		return Frame{}, ErrShortFrame
	}
	eth := header.Ethernet(b)
	return Frame{
		Dst:       net.HardwareAddr(eth.DestinationAddress()),
		Src:       net.HardwareAddr(eth.SourceAddress()),
		EtherType: uint16(eth.Type()),
		Payload:   b[HeaderLen:],
	}, nil
}

// ParseMAC accepts the colon or dash separated 48-bit forms only.
func ParseMAC(s string) (net.HardwareAddr, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(hw) != AddressLen {
		return nil, fmt.Errorf("%w: %q is not a 48-bit address", ErrInvalidAddress, s)
	}
	return hw, nil
}
