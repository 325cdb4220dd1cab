package link

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol/frame"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/testutil/testlog"
	"golang.org/x/net/bpf"
)

func testPair(t *testing.T) (*Link, *Link, *PipeConn, *PipeConn) {
	t.Helper()
	hostMAC, _ := frame.ParseMAC("9C:EB:E8:AE:7E:F5")
	peerMAC, _ := frame.ParseMAC("02:AA:BB:CC:DD:EE")
	a, b := Pipe()

	hostCfg := DefaultConfig()
	hostCfg.Src, hostCfg.Dst = hostMAC, peerMAC
	hostCfg.Delay = 0
	peerCfg := DefaultConfig()
	peerCfg.Src, peerCfg.Dst = peerMAC, hostMAC
	peerCfg.Delay = 0

	host, err := New(a, hostCfg)
	if err != nil {
		t.Fatalf("host link: %v", err)
	}
	peer, err := New(b, peerCfg)
	if err != nil {
		t.Fatalf("peer link: %v", err)
	}
	return host, peer, a, b
}

func TestSendFrameReachesPeerAsDataFrame(t *testing.T) {
	testlog.Start(t)
	host, peer, _, _ := testPair(t)

	if err := host.SendFrame(context.Background(), []byte("fragment-0")); err != nil {
		t.Fatalf("send: %v", err)
	}
	f, ok, err := peer.AwaitFrame(context.Background(), peer.FromPeer(protocol.EtherTypeData), time.Second)
	if err != nil || !ok {
		t.Fatalf("await: ok=%v err=%v", ok, err)
	}
	if string(f.Payload) != "fragment-0" {
		t.Fatalf("unexpected payload %q", f.Payload)
	}
}

func TestSendFramePacesAfterWrite(t *testing.T) {
	testlog.Start(t)
	host, _, _, _ := testPair(t)
	host.cfg.Delay = 5 * time.Millisecond

	var slept []time.Duration
	host.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	for i := 0; i < 3; i++ {
		if err := host.SendFrame(context.Background(), []byte{byte(i)}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := host.Emit(context.Background(), protocol.EtherTypeAck, []byte{1}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(slept) != 3 {
		t.Fatalf("expected pacing after each data frame only, got %v", slept)
	}
	for _, d := range slept {
		if d != 5*time.Millisecond {
			t.Fatalf("unexpected delay %v", d)
		}
	}
}

func TestAwaitFrameSkipsUnmatchedFrames(t *testing.T) {
	testlog.Start(t)
	host, peer, _, peerEnd := testPair(t)
	ctx := context.Background()

	if err := peer.Emit(ctx, protocol.EtherTypeData, []byte("noise")); err != nil {
		t.Fatalf("emit noise: %v", err)
	}
	if err := peerEnd.WriteFrame([]byte{1, 2, 3}); err != nil {
		t.Fatalf("write runt: %v", err)
	}
	if err := peer.Emit(ctx, protocol.EtherTypeAck, []byte("ack")); err != nil {
		t.Fatalf("emit ack: %v", err)
	}

	f, ok, err := host.AwaitFrame(ctx, host.FromPeer(protocol.EtherTypeAck), time.Second)
	if err != nil || !ok {
		t.Fatalf("await: ok=%v err=%v", ok, err)
	}
	if string(f.Payload) != "ack" {
		t.Fatalf("unexpected payload %q", f.Payload)
	}
}

func TestAwaitFrameTimeout(t *testing.T) {
	testlog.Start(t)
	host, _, _, _ := testPair(t)

	start := time.Now()
	_, ok, err := host.AwaitFrame(context.Background(), nil, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("timeout should not be an error: %v", err)
	}
	if ok {
		t.Fatalf("expected no frame")
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Fatalf("returned too early: %v", elapsed)
	}
}

func TestAwaitFrameHonorsContext(t *testing.T) {
	testlog.Start(t)
	host, _, _, _ := testPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok, err := host.AwaitFrame(ctx, nil, time.Minute)
	if ok || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got ok=%v err=%v", ok, err)
	}
}

func TestPipeDropAndClose(t *testing.T) {
	testlog.Start(t)
	a, b := Pipe()
	a.SetDrop(func(p []byte) bool { return p[0] == 0xFF })

	_ = a.WriteFrame([]byte{0xFF})
	_ = a.WriteFrame([]byte{0x01})
	got, err := b.ReadFrame(time.Now().Add(time.Second))
	if err != nil || got[0] != 0x01 {
		t.Fatalf("expected surviving frame, got %v err=%v", got, err)
	}

	_ = b.Close()
	if _, err := b.ReadFrame(time.Now().Add(time.Second)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := b.WriteFrame([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on write, got %v", err)
	}
}

func TestNewRejectsMissingAddresses(t *testing.T) {
	a, _ := Pipe()
	if _, err := New(a, DefaultConfig()); !errors.Is(err, frame.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestEtherTypeFilterProgram(t *testing.T) {
	raw, err := EtherTypeFilter(protocol.EtherTypeData, protocol.EtherTypeRequest, protocol.EtherTypeAck)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	prog := make([]bpf.Instruction, len(raw))
	for i, r := range raw {
		prog[i] = r.Disassemble()
	}
	vm, err := bpf.NewVM(prog)
	if err != nil {
		t.Fatalf("vm: %v", err)
	}

	ethFrame := func(etherType uint16) []byte {
		b := make([]byte, frame.HeaderLen+4)
		b[12], b[13] = byte(etherType>>8), byte(etherType)
		return b
	}
	for _, et := range []uint16{protocol.EtherTypeData, protocol.EtherTypeRequest, protocol.EtherTypeAck} {
		n, err := vm.Run(ethFrame(et))
		if err != nil || n == 0 {
			t.Fatalf("ether type %#04x dropped: n=%d err=%v", et, n, err)
		}
	}
	for _, et := range []uint16{0x0800, 0x86DD, 0x88B8} {
		n, err := vm.Run(ethFrame(et))
		if err != nil || n != 0 {
			t.Fatalf("ether type %#04x accepted: n=%d err=%v", et, n, err)
		}
	}
	if _, err := EtherTypeFilter(); err == nil {
		t.Fatalf("expected error for empty filter")
	}
}
