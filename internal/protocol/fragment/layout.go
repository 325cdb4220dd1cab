package fragment

import (
	"fmt"
	"math"
)

// Layout slices payloads against a maximum frame payload size.
type Layout struct {
	Size int
}

func NewLayout(size int) (Layout, error) {
	if size <= FirstHeaderLen {
		return Layout{}, fmt.Errorf("%w: size=%d", ErrSizeTooSmall, size)
	}
	return Layout{Size: size}, nil
}

func DefaultLayout() Layout {
	return Layout{Size: DefaultSize}
}

func (l Layout) FirstCapacity() int {
	return l.Size - FirstHeaderLen
}

func (l Layout) ContCapacity() int {
	return l.Size - ContHeaderLen
}

func (l Layout) Count(totalLength int) uint32 {
	return Count(totalLength, l.FirstCapacity(), l.ContCapacity())
}

// Bounds returns the half-open payload range carried by fragment index.
func (l Layout) Bounds(index uint32, totalLength int) (int, int) {
	if index == 0 {
		return 0, min(l.FirstCapacity(), totalLength)
	}
	start := l.FirstCapacity() + int(index-1)*l.ContCapacity()
	end := min(start+l.ContCapacity(), totalLength)
	if start > totalLength {
		start = totalLength
	}
	return start, end
}

// Build returns the wire bytes of fragment index of payload.
func (l Layout) Build(tensorID, index uint32, payload []byte) ([]byte, error) {
	if int64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	total := l.Count(len(payload))
	if index >= total {
		return nil, fmt.Errorf("%w: index=%d total=%d", ErrIndexOutOfRange, index, total)
	}
	start, end := l.Bounds(index, len(payload))
	return BuildFragment(tensorID, index, total, uint32(len(payload)), payload[start:end]), nil
}
