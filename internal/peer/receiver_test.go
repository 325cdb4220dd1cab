package peer

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/link"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol/ack"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol/fragment"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol/frame"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol/session"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/testutil/testlog"
)

type fixture struct {
	host     *link.Link
	peer     *link.Link
	hostEnd  *link.PipeConn
	peerEnd  *link.PipeConn
	mu       sync.Mutex
	received []Tensor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hostMAC, _ := frame.ParseMAC("9C:EB:E8:AE:7E:F5")
	peerMAC, _ := frame.ParseMAC("02:AA:BB:CC:DD:EE")
	a, b := link.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	hostCfg := link.DefaultConfig()
	hostCfg.Src, hostCfg.Dst, hostCfg.Delay = hostMAC, peerMAC, 0
	peerCfg := link.DefaultConfig()
	peerCfg.Src, peerCfg.Dst, peerCfg.Delay = peerMAC, hostMAC, 0
	host, err := link.New(a, hostCfg)
	if err != nil {
		t.Fatalf("host link: %v", err)
	}
	peer, err := link.New(b, peerCfg)
	if err != nil {
		t.Fatalf("peer link: %v", err)
	}
	return &fixture{host: host, peer: peer, hostEnd: a, peerEnd: b}
}

func (f *fixture) receiver() *Receiver {
	return NewReceiver(f.peer, func(t Tensor) {
		f.mu.Lock()
		f.received = append(f.received, t)
		f.mu.Unlock()
	})
}

func (f *fixture) tensors() []Tensor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Tensor(nil), f.received...)
}

func (f *fixture) nextAck(t *testing.T) ack.Record {
	t.Helper()
	fr, ok, err := f.host.AwaitFrame(context.Background(), f.host.FromPeer(protocol.EtherTypeAck), time.Second)
	if err != nil || !ok {
		t.Fatalf("await ack: ok=%v err=%v", ok, err)
	}
	rec, err := ack.Decode(fr.Payload)
	if err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if len(fr.Payload) != ack.RecordLen {
		t.Fatalf("expected padded %d byte record, got %d", ack.RecordLen, len(fr.Payload))
	}
	return rec
}

func mustBuild(t *testing.T, l fragment.Layout, id, index uint32, payload []byte) []byte {
	t.Helper()
	b, err := l.Build(id, index, payload)
	if err != nil {
		t.Fatalf("build %d: %v", index, err)
	}
	return b
}

func TestHandleInOrderDeliversTensor(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	r := f.receiver()
	l, _ := fragment.NewLayout(64)
	payload := bytes.Repeat([]byte("tensor"), 20)
	total := l.Count(len(payload))
	ctx := context.Background()

	for idx := uint32(0); idx < total; idx++ {
		if err := r.Handle(ctx, mustBuild(t, l, 3, idx, payload)); err != nil {
			t.Fatalf("handle %d: %v", idx, err)
		}
		rec := f.nextAck(t)
		if !rec.IsAck() || rec.TensorID != 3 || rec.FragmentIndex != idx {
			t.Fatalf("fragment %d unexpected reply %+v", idx, rec)
		}
	}
	got := f.tensors()
	if len(got) != 1 || got[0].ID != 3 || !bytes.Equal(got[0].Payload, payload) {
		t.Fatalf("unexpected delivery: %+v", got)
	}
}

func TestHandleOutOfOrderNacksExpected(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	r := f.receiver()
	l, _ := fragment.NewLayout(64)
	payload := make([]byte, 200)
	ctx := context.Background()

	_ = r.Handle(ctx, mustBuild(t, l, 5, 0, payload))
	f.nextAck(t)
	_ = r.Handle(ctx, mustBuild(t, l, 5, 2, payload))
	rec := f.nextAck(t)
	if rec.IsAck() || rec.FragmentIndex != 1 {
		t.Fatalf("expected NACK(1), got %+v", rec)
	}
	if id, next, active := r.Expected(); id != 5 || next != 1 || !active {
		t.Fatalf("state moved on an out-of-order fragment: id=%d next=%d active=%v", id, next, active)
	}
}

func TestHandleUnknownTransferNacksZero(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	r := f.receiver()
	l, _ := fragment.NewLayout(64)

	_ = r.Handle(context.Background(), mustBuild(t, l, 9, 1, make([]byte, 100)))
	rec := f.nextAck(t)
	if rec.IsAck() || rec.TensorID != 9 || rec.FragmentIndex != 0 {
		t.Fatalf("expected NACK(0) for tensor 9, got %+v", rec)
	}
}

func TestHandleResentFinalFragmentNacksTotal(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	r := f.receiver()
	l, _ := fragment.NewLayout(64)
	payload := make([]byte, 100)
	total := l.Count(len(payload))
	ctx := context.Background()

	for idx := uint32(0); idx < total; idx++ {
		_ = r.Handle(ctx, mustBuild(t, l, 1, idx, payload))
		f.nextAck(t)
	}
	_ = r.Handle(ctx, mustBuild(t, l, 1, total-1, payload))
	rec := f.nextAck(t)
	if rec.IsAck() || rec.FragmentIndex != total {
		t.Fatalf("expected NACK(%d), got %+v", total, rec)
	}
	if n := len(f.tensors()); n != 1 {
		t.Fatalf("expected one delivery, got %d", n)
	}
}

func TestHandleDropsMalformed(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	r := f.receiver()
	if err := r.Handle(context.Background(), []byte{1, 2, 3}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	_, ok, err := f.host.AwaitFrame(context.Background(), nil, 20*time.Millisecond)
	if err != nil || ok {
		t.Fatalf("malformed fragment should get no reply: ok=%v err=%v", ok, err)
	}
}

func TestRequestTransferEmitsRequestFrame(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	if err := f.receiver().RequestTransfer(context.Background()); err != nil {
		t.Fatalf("request: %v", err)
	}
	_, ok, err := f.host.AwaitFrame(context.Background(), f.host.FromPeer(protocol.EtherTypeRequest), time.Second)
	if err != nil || !ok {
		t.Fatalf("expected request frame: ok=%v err=%v", ok, err)
	}
}

func TestSenderAndReceiverSurviveLoss(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	var dataSeen, acksSeen atomic.Int64
	f.hostEnd.SetDrop(func(b []byte) bool {
		return dataSeen.Add(1)%3 == 0
	})
	f.peerEnd.SetDrop(func(b []byte) bool {
		return acksSeen.Add(1)%4 == 0
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := f.receiver()
	served := make(chan error, 1)
	go func() { served <- r.Serve(ctx) }()

	cfg := session.DefaultConfig()
	cfg.FragmentSize = 128
	cfg.AckTimeout = 40 * time.Millisecond
	s, err := session.NewSender(f.host, session.ListenerFor(f.host), cfg)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}

	payloads := map[uint32][]byte{
		1:  bytes.Repeat([]byte{0x11}, 1000),
		2:  bytes.Repeat([]byte{0x22}, 50),
		99: bytes.Repeat([]byte{0x99}, 777),
	}
	for _, id := range []uint32{1, 2, 99} {
		res, err := s.Send(ctx, id, payloads[id])
		if err != nil {
			t.Fatalf("send %d: %v", id, err)
		}
		if res.Transmissions < int(res.TotalFragments) {
			t.Fatalf("tensor %d: fewer transmissions than fragments: %+v", id, res)
		}
	}

	deadline := time.Now().Add(time.Second)
	for len(f.tensors()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-served; err != nil {
		t.Fatalf("serve: %v", err)
	}

	got := f.tensors()
	seen := map[uint32]bool{}
	for _, tn := range got {
		if !bytes.Equal(tn.Payload, payloads[tn.ID]) {
			t.Fatalf("tensor %d payload mismatch", tn.ID)
		}
		seen[tn.ID] = true
	}
	for id := range payloads {
		if !seen[id] {
			t.Fatalf("tensor %d never delivered", id)
		}
	}
}
