package softspi

import (
	"testing"

	"mcal-go/drivers/dio"
	"mcal-go/errcode"
	"mcal-go/regfile"
	"mcal-go/sim"
)

// slave is a shift-register device clocked by the bus. It answers with
// resp and records what it receives.
type slave struct {
	cpol, cpha bool

	clk  bool
	mosi bool
	miso bool

	resp   []byte
	cur    byte
	nbits  int
	rxByte byte
	got    []byte
}

type line struct {
	get func() bool
	set func(bool)
}

func (l line) Level() bool { return l.get() }
func (l line) SetLevel(v bool) error {
	l.set(v)
	return nil
}

func newSlave(mode uint8, resp []byte) *slave {
	s := &slave{cpol: mode&2 != 0, cpha: mode&1 != 0, resp: resp}
	s.clk = s.cpol
	s.load()
	if !s.cpha {
		s.present()
	}
	return s
}

func (s *slave) load() {
	s.cur = 0
	if len(s.resp) > 0 {
		s.cur = s.resp[0]
		s.resp = s.resp[1:]
	}
}

func (s *slave) present() {
	s.miso = s.cur&0x80 != 0
	s.cur <<= 1
}

func (s *slave) capture() {
	s.rxByte <<= 1
	if s.mosi {
		s.rxByte |= 1
	}
	s.nbits++
	if s.nbits == 8 {
		s.got = append(s.got, s.rxByte)
		s.nbits, s.rxByte = 0, 0
		s.load()
	}
}

func (s *slave) clock(v bool) {
	if v == s.clk {
		return
	}
	s.clk = v
	leading := v != s.cpol
	switch {
	case leading && !s.cpha:
		s.capture()
	case leading && s.cpha:
		s.present()
	case !leading && !s.cpha:
		s.present()
	default:
		s.capture()
	}
}

func (s *slave) config(mode uint8) Config {
	return Config{
		SCK:  line{get: func() bool { return s.clk }, set: s.clock},
		SDO:  line{get: func() bool { return s.mosi }, set: func(v bool) { s.mosi = v }},
		SDI:  line{get: func() bool { return s.miso }, set: func(bool) {}},
		Mode: mode,
	}
}

func TestTx_AllModes(t *testing.T) {
	for mode := uint8(0); mode < 4; mode++ {
		s := newSlave(mode, []byte{0xC3, 0x5A})
		b, err := New(s.config(mode))
		if err != nil {
			t.Fatal(err)
		}
		r := make([]byte, 2)
		if err := b.Tx([]byte{0xA5, 0x0F}, r); err != nil {
			t.Fatal(err)
		}
		if len(s.got) != 2 || s.got[0] != 0xA5 || s.got[1] != 0x0F {
			t.Fatalf("mode %d slave got %x", mode, s.got)
		}
		if r[0] != 0xC3 || r[1] != 0x5A {
			t.Fatalf("mode %d master got %x", mode, r)
		}
		if s.clk != s.cpol {
			t.Fatalf("mode %d clock not idle", mode)
		}
	}
}

func TestTx_LSBFirst(t *testing.T) {
	s := newSlave(0, []byte{0x01, 0x80})
	cfg := s.config(0)
	cfg.LSBFirst = true
	b, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	r := make([]byte, 2)
	if err := b.Tx([]byte{0x01, 0x0F}, r); err != nil {
		t.Fatal(err)
	}
	// The slave shifts MSB first, so every byte arrives mirrored.
	if len(s.got) != 2 || s.got[0] != 0x80 || s.got[1] != 0xF0 {
		t.Fatalf("slave got %x", s.got)
	}
	if r[0] != 0x80 || r[1] != 0x01 {
		t.Fatalf("master got %x", r)
	}
}

func TestTx_NilBuffers(t *testing.T) {
	s := newSlave(0, []byte{1, 2, 3})
	b, _ := New(s.config(0))
	r := make([]byte, 3)
	if err := b.Tx(nil, r); err != nil {
		t.Fatal(err)
	}
	if r[0] != 1 || r[2] != 3 || len(s.got) != 3 || s.got[1] != 0 {
		t.Fatalf("r=%x got=%x", r, s.got)
	}
	if err := b.Tx([]byte{9}, nil); err != nil {
		t.Fatal(err)
	}
	if err := b.Tx([]byte{1, 2}, make([]byte, 1)); errcode.Of(err) != errcode.InvalidPayload {
		t.Fatalf("err=%v", err)
	}
}

func TestNew_Rejects(t *testing.T) {
	s := newSlave(0, nil)
	cfg := s.config(0)
	cfg.Mode = 4
	if _, err := New(cfg); errcode.Of(err) != errcode.InvalidMode {
		t.Fatalf("err=%v", err)
	}
	if _, err := New(Config{}); errcode.Of(err) != errcode.InvalidConfig {
		t.Fatalf("err=%v", err)
	}
}

// On the simulated F1 an undriven pin reads back its output latch, so
// using one channel for SDO and SDI loops the bus back.
func TestTx_DIOLoopback(t *testing.T) {
	s := regfile.NewSim()
	sim.STM32GPIO(s, dio.Banks[dio.PortA])
	d := dio.New(s, nil)
	const sck, mosi = dio.ChannelID(5), dio.ChannelID(7)
	_ = d.ConfigureOutput(sck)
	_ = d.ConfigureOutput(mosi)

	b, err := New(Config{SCK: d.Channel(sck), SDO: d.Channel(mosi), SDI: d.Channel(mosi)})
	if err != nil {
		t.Fatal(err)
	}
	w := []byte{0x00, 0xFF, 0x96}
	r := make([]byte, len(w))
	if err := b.Tx(w, r); err != nil {
		t.Fatal(err)
	}
	for i := range w {
		if r[i] != w[i] {
			t.Fatalf("loopback byte %d: %#x != %#x", i, r[i], w[i])
		}
	}
	if d.ReadChannel(sck) != dio.Low {
		t.Fatal("SCK not idle low")
	}
}
