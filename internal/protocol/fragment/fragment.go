package fragment

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	FirstHeaderLen = 20
	ContHeaderLen  = 16
	DefaultSize    = 1400
)

var (
	ErrSizeTooSmall    = errors.New("fragment: size leaves no room for payload")
	ErrShortHeader     = errors.New("fragment: short header")
	ErrIndexOutOfRange = errors.New("fragment: index out of range")
	ErrPayloadTooLarge = errors.New("fragment: payload too large")
	ErrInvalidTotal    = errors.New("fragment: invalid total fragments")
)

// Header is the decoded fragment header. TotalLength is carried on fragment 0 only.
type Header struct {
	TensorID    uint32
	Index       uint32
	Total       uint32
	TotalLength uint32
	Length      uint32
}

func (h Header) IsFirst() bool {
	return h.Index == 0
}

// Len is the encoded size of the header shape selected by the index.
func (h Header) Len() int {
	if h.IsFirst() {
		return FirstHeaderLen
	}
	return ContHeaderLen
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, h.Len())
	putHeader(buf, h)
	return buf
}

func putHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint32(buf[0:4], h.TensorID)
	binary.LittleEndian.PutUint32(buf[4:8], h.Index)
	binary.LittleEndian.PutUint32(buf[8:12], h.Total)
	if h.IsFirst() {
		binary.LittleEndian.PutUint32(buf[12:16], h.TotalLength)
		binary.LittleEndian.PutUint32(buf[16:20], h.Length)
		return
	}
	binary.LittleEndian.PutUint32(buf[12:16], h.Length)
}

// DecodeHeader reads the index field first to pick the header shape.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < ContHeaderLen {
		return Header{}, ErrShortHeader
	}
	h := Header{
		TensorID: binary.LittleEndian.Uint32(b[0:4]),
		Index:    binary.LittleEndian.Uint32(b[4:8]),
		Total:    binary.LittleEndian.Uint32(b[8:12]),
	}
	if h.IsFirst() {
		if len(b) < FirstHeaderLen {
			return Header{}, ErrShortHeader
		}
		h.TotalLength = binary.LittleEndian.Uint32(b[12:16])
		h.Length = binary.LittleEndian.Uint32(b[16:20])
		return h, nil
	}
	h.Length = binary.LittleEndian.Uint32(b[12:16])
	return h, nil
}

// Decode splits a fragment into header and payload. A declared length larger
// than the bytes present is clamped; trailing link padding beyond the declared
// length is dropped.
func Decode(b []byte) (Header, []byte, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Header{}, nil, err
	}
	if h.Total == 0 || h.Index >= h.Total {
		return Header{}, nil, fmt.Errorf("%w: index=%d total=%d", ErrInvalidTotal, h.Index, h.Total)
	}
	body := b[h.Len():]
	if int64(h.Length) < int64(len(body)) {
		body = body[:h.Length]
	}
	h.Length = uint32(len(body))
	return h, body, nil
}

// Count returns the number of fragments needed for totalLength bytes.
func Count(totalLength, firstCap, contCap int) uint32 {
	if totalLength <= firstCap {
		return 1
	}
	remaining := totalLength - firstCap
	return uint32(1 + (remaining+contCap-1)/contCap)
}

// BuildFragment frames slice with the header shape selected by index.
func BuildFragment(tensorID, index, totalFragments, totalLength uint32, slice []byte) []byte {
	h := Header{
		TensorID:    tensorID,
		Index:       index,
		Total:       totalFragments,
		TotalLength: totalLength,
		Length:      uint32(len(slice)),
	}
	buf := make([]byte, h.Len()+len(slice))
	putHeader(buf, h)
	copy(buf[h.Len():], slice)
	return buf
}
