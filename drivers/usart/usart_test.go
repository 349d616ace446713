package usart

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"mcal-go/det"
	"mcal-go/drivers/port"
	"mcal-go/errcode"
	"mcal-go/irq"
	"mcal-go/regfile"
	"mcal-go/sim"
	"mcal-go/types"
)

type fakeMux struct{ calls []string }

func (m *fakeMux) SetDirection(id port.PinID, dir port.Direction) error {
	m.calls = append(m.calls, fmt.Sprintf("dir %d %v", id, dir))
	return nil
}

func (m *fakeMux) SetMode(id port.PinID, md port.Mode) error {
	m.calls = append(m.calls, fmt.Sprintf("mode %d %d", id, md))
	return nil
}

// syncBuf collects transmitted bytes; the model writes from whichever
// goroutine touched DR.
type syncBuf struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuf) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuf) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

type rig struct {
	s      *regfile.Sim
	rec    *det.Recorder
	tab    *irq.Table
	mux    *fakeMux
	tx     [len(Banks)]*syncBuf
	models [len(Banks)]*sim.USARTModel
	d      *Driver
}

func newRig() *rig {
	r := &rig{s: regfile.NewSim(), rec: &det.Recorder{}, tab: &irq.Table{}, mux: &fakeMux{}}
	lines := []irq.Vector{irq.USART1, irq.USART2, irq.USART3}
	r.d = New(r.s, r.rec, r.mux)
	for i := range Banks {
		id := ID(i)
		r.tx[i] = &syncBuf{}
		r.models[i] = sim.USART(r.s, Banks[i], r.tx[i], r.tab, uint8(lines[i]))
		r.tab.Register(lines[i], func() { r.d.HandleInterrupt(id) })
	}
	return r
}

func cfg(id ID) Config {
	return Config{
		ID: id, Baud: 9600, WordLength: 8, StopBits: Stop1, Mode: TXRX,
		Enabled: true, TX: 9, RX: 8, PinMode: port.ModeUART,
	}
}

func ctx20ms(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	t.Cleanup(cancel)
	return ctx
}

func TestBRR(t *testing.T) {
	cases := map[uint32]uint32{
		9600:    0x341,
		115200:  0x45,
		2250000: 0x3,
		0:       0,
		100:     0, // 80000 does not fit 16 bits
		9000000: 0,
	}
	for baud, want := range cases {
		if got := BRR(DefaultClock, baud); got != want {
			t.Fatalf("BRR(%d)=%#x want %#x", baud, got, want)
		}
	}
}

func TestInit_ProgramsRegisters(t *testing.T) {
	r := newRig()
	c := cfg(USART1)
	c.WordLength = 9
	c.StopBits = Stop2
	c.Parity = Odd
	if err := r.d.Init([]Config{c}); err != nil {
		t.Fatal(err)
	}
	if got := r.s.Peek(reg(USART1, regBRR)); got != 0x341 {
		t.Fatalf("BRR=%#x", got)
	}
	cr1 := r.s.Peek(reg(USART1, regCR1))
	want := uint32(1<<bitM | 1<<bitRE | 1<<3 | 1<<bitPS | 1<<10 | 1<<bitUE)
	if cr1 != want {
		t.Fatalf("CR1=%#x want %#x", cr1, want)
	}
	if cr2 := r.s.Peek(reg(USART1, regCR2)); cr2 != 2<<shiftSTOP {
		t.Fatalf("CR2=%#x", cr2)
	}
	wantMux := []string{"dir 9 out", "mode 9 1", "dir 8 in", "mode 8 1"}
	if strings.Join(r.mux.calls, ",") != strings.Join(wantMux, ",") {
		t.Fatalf("mux calls %v", r.mux.calls)
	}

	// UE is the last CR1 write.
	var last regfile.Access
	for _, acc := range r.s.Writes() {
		if acc.Addr == reg(USART1, regCR1) {
			last = acc
		}
	}
	if last.Value&(1<<bitUE) == 0 {
		t.Fatal("UE not set by final CR1 write")
	}
}

func TestInit_EvenParity(t *testing.T) {
	r := newRig()
	c := cfg(USART2)
	c.Parity = Even
	c.Mode = TX
	if err := r.d.Init([]Config{c}); err != nil {
		t.Fatal(err)
	}
	cr1 := r.s.Peek(reg(USART2, regCR1))
	if cr1&(1<<10) == 0 || cr1&(1<<bitPS) != 0 {
		t.Fatalf("CR1=%#x", cr1)
	}
	if cr1&(1<<bitRE) != 0 {
		t.Fatal("RE set for TX only")
	}
	if len(r.mux.calls) != 2 {
		t.Fatalf("RX pin routed for TX only: %v", r.mux.calls)
	}
}

func TestInit_Rejects(t *testing.T) {
	r := newRig()
	if err := r.d.Init(nil); err != errcode.NullPointer {
		t.Fatalf("nil err=%v", err)
	}

	bad := cfg(USART1)
	bad.WordLength = 7
	ok := cfg(USART2)
	if err := r.d.Init([]Config{ok, bad}); err != errcode.InvalidConfig {
		t.Fatalf("word length err=%v", err)
	}
	if len(r.s.Writes()) != 0 || len(r.mux.calls) != 0 {
		t.Fatal("rejected table touched hardware")
	}

	unknown := cfg(USART1)
	unknown.ID = 7
	if err := r.d.Init([]Config{unknown}); err != errcode.InvalidInstance {
		t.Fatalf("id err=%v", err)
	}
	if err := r.d.Init([]Config{cfg(USART1), cfg(USART1)}); err != errcode.InvalidConfig {
		t.Fatalf("duplicate err=%v", err)
	}
	for _, mut := range []func(*Config){
		func(c *Config) { c.Baud = 0 },
		func(c *Config) { c.StopBits = 4 },
		func(c *Config) { c.Mode = 0 },
		func(c *Config) { c.Parity = 3 },
	} {
		c := cfg(USART3)
		mut(&c)
		if err := r.d.Init([]Config{c}); err != errcode.InvalidConfig {
			t.Fatalf("cfg %+v err=%v", c, err)
		}
	}

	off := cfg(USART3)
	off.Enabled = false
	off.WordLength = 0 // disabled entries are not validated
	if err := r.d.Init([]Config{off}); err != nil {
		t.Fatal(err)
	}
	if r.d.Initialized(USART3) {
		t.Fatal("disabled entry initialised")
	}
}

func TestBeforeInit(t *testing.T) {
	r := newRig()
	if err := r.d.SendByte(context.Background(), USART2, 'x'); err != errcode.NotInitialized {
		t.Fatalf("err=%v", err)
	}
	rep, _ := r.rec.Last()
	if rep.Module != ModuleID || rep.Instance != uint8(USART2) || rep.Service != SIDSendByte || rep.Error != EUninit {
		t.Fatalf("report %+v", rep)
	}
	if _, err := r.d.ReceiveByte(context.Background(), 9); err != errcode.InvalidInstance {
		t.Fatalf("err=%v", err)
	}
}

func TestSend(t *testing.T) {
	r := newRig()
	_ = r.d.Init([]Config{cfg(USART1)})
	if err := r.d.SendByte(context.Background(), USART1, '>'); err != nil {
		t.Fatal(err)
	}
	if n, err := r.d.Write(context.Background(), USART1, []byte("hi\r\n")); n != 4 || err != nil {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if got := r.tx[USART1].String(); got != ">hi\r\n" {
		t.Fatalf("tx=%q", got)
	}
	if r.tx[USART2].String() != "" {
		t.Fatal("bytes leaked to USART2")
	}
}

func TestSend_RxOnly(t *testing.T) {
	r := newRig()
	c := cfg(USART1)
	c.Mode = RX
	_ = r.d.Init([]Config{c})
	if err := r.d.SendByte(context.Background(), USART1, 'x'); err != errcode.InvalidMode {
		t.Fatalf("err=%v", err)
	}
}

func TestReceiveByte(t *testing.T) {
	r := newRig()
	_ = r.d.Init([]Config{cfg(USART1)})
	r.models[USART1].Inject([]byte("AB"))
	for _, want := range []byte("AB") {
		b, err := r.d.ReceiveByte(ctx20ms(t), USART1)
		if err != nil || b != want {
			t.Fatalf("got %q err=%v", b, err)
		}
	}
	_, err := r.d.ReceiveByte(ctx20ms(t), USART1)
	if errcode.Of(err) != errcode.Timeout {
		t.Fatalf("err=%v", err)
	}
	if r.rec.Count(SIDReceiveByte, ETimeout) != 1 {
		t.Fatal("timeout not reported")
	}
}

func TestReceiveString(t *testing.T) {
	r := newRig()
	_ = r.d.Init([]Config{cfg(USART1)})
	r.models[USART1].Inject([]byte("hello\rworld"))
	s, err := r.d.ReceiveString(ctx20ms(t), USART1)
	if err != nil || string(s) != "hello" {
		t.Fatalf("got %q err=%v", s, err)
	}
	if r.models[USART1].Pending() != 5 {
		t.Fatalf("pending=%d", r.models[USART1].Pending())
	}

	r.models[USART1].Inject(bytes.Repeat([]byte{'z'}, 150))
	s, err = r.d.ReceiveString(ctx20ms(t), USART1)
	if err != nil || len(s) != MaxString {
		t.Fatalf("len=%d err=%v", len(s), err)
	}
}

func TestInterrupt_RunsOwnCallback(t *testing.T) {
	r := newRig()
	_ = r.d.Init([]Config{cfg(USART1), cfg(USART2)})
	var hits [len(Banks)]int
	for i := range hits {
		i := i
		_ = r.d.SetCallback(ID(i), func() { hits[i]++ })
	}
	_ = r.d.EnableRxInterrupt(USART1)
	_ = r.d.EnableRxInterrupt(USART2)

	r.models[USART2].Inject([]byte("ping"))
	if hits[USART2] != 1 || hits[USART1] != 0 {
		t.Fatalf("hits=%v", hits)
	}
	if r.s.Peek(reg(USART2, regSR))&(1<<bitRXNE) != 0 {
		t.Fatal("RXNE left set")
	}

	p := r.d.Port(USART2)
	if p.Buffered() != 4 {
		t.Fatalf("buffered=%d", p.Buffered())
	}
	buf := make([]byte, 8)
	n, _ := p.Read(buf)
	if string(buf[:n]) != "ping" {
		t.Fatalf("read %q", buf[:n])
	}
}

func TestInterrupt_Overflow(t *testing.T) {
	r := newRig()
	_ = r.d.Init([]Config{cfg(USART3)})
	_ = r.d.EnableRxInterrupt(USART3)
	r.models[USART3].Inject(bytes.Repeat([]byte{1}, RingSize+44))
	if got := r.d.Dropped(USART3); got != 44 {
		t.Fatalf("dropped=%d", got)
	}
	if r.d.Port(USART3).Buffered() != RingSize {
		t.Fatal("ring not full")
	}
}

func TestPort_RecvSomeContext(t *testing.T) {
	r := newRig()
	_ = r.d.Init([]Config{cfg(USART1)})
	_ = r.d.EnableRxInterrupt(USART1)
	p := r.d.Port(USART1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		r.models[USART1].Inject([]byte("ok"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	buf := make([]byte, 4)
	got := ""
	for len(got) < 2 {
		n, err := p.RecvSomeContext(ctx, buf)
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		got += string(buf[:n])
	}
	if got != "ok" {
		t.Fatalf("got %q", got)
	}

	if _, err := p.RecvSomeContext(ctx20ms(t), buf); err != context.DeadlineExceeded {
		t.Fatalf("err=%v", err)
	}
}

func TestPort_PolledRead(t *testing.T) {
	r := newRig()
	_ = r.d.Init([]Config{cfg(USART1)})
	p := r.d.Port(USART1)
	r.models[USART1].Inject([]byte("q"))
	buf := make([]byte, 4)
	n, err := p.RecvSomeContext(ctx20ms(t), buf)
	if err != nil || string(buf[:n]) != "q" {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if _, err := p.Write([]byte("w")); err != nil || r.tx[USART1].String() != "w" {
		t.Fatalf("write err=%v tx=%q", err, r.tx[USART1].String())
	}
}

func TestSetBaudRate(t *testing.T) {
	r := newRig()
	_ = r.d.Init([]Config{cfg(USART1)})
	if err := r.d.Port(USART1).SetBaudRate(115200); err != nil {
		t.Fatal(err)
	}
	if got := r.s.Peek(reg(USART1, regBRR)); got != 0x45 {
		t.Fatalf("BRR=%#x", got)
	}
	if err := r.d.SetBaudRate(USART1, 1); err != errcode.InvalidConfig {
		t.Fatalf("err=%v", err)
	}
}

func TestInit_RoutesThroughPortEngine(t *testing.T) {
	s := regfile.NewSim()
	eng := port.New(s, nil, nil)
	table := []port.PinDescriptor{
		{ID: port.PB0, Enabled: true, Direction: port.Out, Resistor: port.NoResistor, Initial: port.NoLevel, DirectionChangeable: true, ModeChangeable: true},
		{ID: port.PB1, Enabled: true, Direction: port.In, Resistor: port.NoResistor, Initial: port.NoLevel, DirectionChangeable: true, ModeChangeable: true},
	}
	if err := eng.Init(table); err != nil {
		t.Fatal(err)
	}
	d := New(s, nil, eng)
	c := cfg(USART1)
	c.TX, c.RX = port.PB1, port.PB0
	if err := d.Init([]Config{c}); err != nil {
		t.Fatal(err)
	}
	tx, _ := eng.State(port.PB1)
	rx, _ := eng.State(port.PB0)
	if !tx.Output || tx.Mode != uint8(port.ModeUART) || !tx.AltFunc {
		t.Fatalf("tx pin %+v", tx)
	}
	if rx.Output || rx.Mode != uint8(port.ModeUART) {
		t.Fatalf("rx pin %+v", rx)
	}

	// A fixed pin makes Init fail with the engine's code.
	table[0].ModeChangeable = false
	_ = eng.Init(table)
	if err := d.Init([]Config{c}); errcode.Of(err) != errcode.AttributeUnchangeable {
		t.Fatalf("err=%v", err)
	}
}

func TestVersion(t *testing.T) {
	d := New(regfile.NewSim(), nil, nil)
	var vi types.VersionInfo
	if err := d.GetVersionInfo(&vi); err != nil || vi.ModuleID != ModuleID {
		t.Fatalf("vi=%+v err=%v", vi, err)
	}
	if err := d.GetVersionInfo(nil); err != errcode.NullPointer {
		t.Fatalf("err=%v", err)
	}
}
