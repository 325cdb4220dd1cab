// Package tensorfile reads and writes the multi-tensor model container.
//
// Layout, all little-endian u32 unless noted:
//
//	num_tensors
//	per tensor: id, ndims, dims[ndims], dtype,
//	            nscales, scales[nscales] (f32),
//	            nzero, zero_points[nzero] (i32),
//	            data_length, data[data_length]
//
// A tensor's wire payload is its whole block, id through data.
package tensorfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	MaxDims    = 16
	MaxParams  = 1 << 16
	MaxDataLen = 1 << 30
)

var (
	ErrTruncated = errors.New("tensorfile: truncated container")
	ErrLimit     = errors.New("tensorfile: field exceeds limit")
)

type Tensor struct {
	ID         uint32
	Dims       []uint32
	DType      uint32
	Scales     []float32
	ZeroPoints []int32
	Data       []byte
	// Raw is the serialized block exactly as it appears in the container.
	Raw []byte
}

type Reader struct {
	r     *bufio.Reader
	count uint32
	read  uint32
}

// NewReader consumes the tensor count header.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	var hdr [4]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: tensor count: %v", ErrTruncated, err)
	}
	return &Reader{r: br, count: binary.LittleEndian.Uint32(hdr[:])}, nil
}

func (r *Reader) Count() int {
	return int(r.count)
}

// Next returns io.EOF once Count tensors have been read.
func (r *Reader) Next() (Tensor, error) {
	if r.read >= r.count {
		return Tensor{}, io.EOF
	}
	b := blockReader{r: r.r}
	var t Tensor
	t.ID = b.u32("id")
	ndims := b.count("ndims", MaxDims)
	for i := 0; i < ndims && b.err == nil; i++ {
		t.Dims = append(t.Dims, b.u32("dim"))
	}
	t.DType = b.u32("dtype")
	nscales := b.count("nscales", MaxParams)
	for i := 0; i < nscales && b.err == nil; i++ {
		t.Scales = append(t.Scales, math.Float32frombits(b.u32("scale")))
	}
	nzero := b.count("nzero", MaxParams)
	for i := 0; i < nzero && b.err == nil; i++ {
		t.ZeroPoints = append(t.ZeroPoints, int32(b.u32("zero_point")))
	}
	n := b.count("data_length", MaxDataLen)
	t.Data = b.bytes("data", n)
	if b.err != nil {
		return Tensor{}, fmt.Errorf("tensor %d of %d: %w", r.read, r.count, b.err)
	}
	t.Raw = b.buf.Bytes()
	r.read++
	return t, nil
}

// ReadAll drains the remaining tensors.
func (r *Reader) ReadAll() ([]Tensor, error) {
	out := make([]Tensor, 0, r.count-r.read)
	for {
		t, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
}

func ReadFile(path string) ([]Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := NewReader(f)
	if err != nil {
		return nil, err
	}
	return r.ReadAll()
}

// Encode serializes t's fields; Raw is ignored.
func Encode(t Tensor) []byte {
	var buf bytes.Buffer
	put := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	put(t.ID)
	put(uint32(len(t.Dims)))
	for _, d := range t.Dims {
		put(d)
	}
	put(t.DType)
	put(uint32(len(t.Scales)))
	for _, s := range t.Scales {
		put(math.Float32bits(s))
	}
	put(uint32(len(t.ZeroPoints)))
	for _, z := range t.ZeroPoints {
		put(uint32(z))
	}
	put(uint32(len(t.Data)))
	buf.Write(t.Data)
	return buf.Bytes()
}

func Write(w io.Writer, tensors []Tensor) error {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(tensors)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	for _, t := range tensors {
		if _, err := w.Write(Encode(t)); err != nil {
			return fmt.Errorf("write tensor %d: %w", t.ID, err)
		}
	}
	return nil
}

// blockReader copies every byte it reads into buf and latches the first error.
type blockReader struct {
	r   io.Reader
	buf bytes.Buffer
	err error
}

func (b *blockReader) u32(field string) uint32 {
	raw := b.bytes(field, 4)
	if b.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(raw)
}

func (b *blockReader) count(field string, limit int) int {
	v := b.u32(field)
	if b.err != nil {
		return 0
	}
	if uint64(v) > uint64(limit) {
		b.err = fmt.Errorf("%w: %s=%d limit=%d", ErrLimit, field, v, limit)
		return 0
	}
	return int(v)
}

func (b *blockReader) bytes(field string, n int) []byte {
	if b.err != nil {
		return nil
	}
	// buf grows with the bytes actually read, not with a declared length.
	start := b.buf.Len()
	if _, err := io.CopyN(&b.buf, b.r, int64(n)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		b.err = fmt.Errorf("%w: %s: %v", ErrTruncated, field, err)
		return nil
	}
	return b.buf.Bytes()[start:]
}
