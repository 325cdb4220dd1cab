package ack

import (
	"encoding/binary"
	"errors"
)

const (
	// RecordLen is the padded size the peer puts on the wire.
	RecordLen = 12
	// MinRecordLen covers the fields a reader consumes; the rest is ignored.
	MinRecordLen = 9

	StatusNack uint8 = 0
	StatusAck  uint8 = 1
)

var ErrShortRecord = errors.New("ack: short record")

// Record acknowledges (or rejects) one fragment of one tensor. On a NACK the
// FragmentIndex is the index the receiver expects next.
type Record struct {
	TensorID      uint32
	FragmentIndex uint32
	Status        uint8
}

func (r Record) IsAck() bool {
	return r.Status == StatusAck
}

func Encode(r Record) []byte {
	buf := make([]byte, RecordLen)
	binary.LittleEndian.PutUint32(buf[0:4], r.TensorID)
	binary.LittleEndian.PutUint32(buf[4:8], r.FragmentIndex)
	buf[8] = r.Status
	return buf
}

func Decode(b []byte) (Record, error) {
	if len(b) < MinRecordLen {
		return Record{}, ErrShortRecord
	}
	return Record{
		TensorID:      binary.LittleEndian.Uint32(b[0:4]),
		FragmentIndex: binary.LittleEndian.Uint32(b[4:8]),
		Status:        b[8],
	}, nil
}
