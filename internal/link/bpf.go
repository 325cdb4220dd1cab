package link

import (
	"github.com/pkg/errors"
	"golang.org/x/net/bpf"
)

// etherTypeOffset is where the EtherType sits in an untagged Ethernet II header.
const etherTypeOffset = 12

// EtherTypeFilter assembles a classic BPF program that accepts frames whose
// EtherType is one of types and drops everything else.
func EtherTypeFilter(types ...uint16) ([]bpf.RawInstruction, error) {
	if len(types) == 0 {
		return nil, errors.New("link: filter needs at least one ether type")
	}
	if len(types) > 255 {
		return nil, errors.New("link: too many ether types for one filter")
	}
	prog := []bpf.Instruction{
		bpf.LoadAbsolute{Off: etherTypeOffset, Size: 2},
	}
	n := len(types)
	for i, t := range types {
		// a match jumps over the remaining tests and the drop
		prog = append(prog, bpf.JumpIf{
			Cond:     bpf.JumpEqual,
			Val:      uint32(t),
			SkipTrue: uint8(n - i),
		})
	}
	prog = append(prog,
		bpf.RetConstant{Val: 0},
		bpf.RetConstant{Val: 0xffff},
	)
	raw, err := bpf.Assemble(prog)
	if err != nil {
		return nil, errors.Wrap(err, "assemble filter")
	}
	return raw, nil
}
