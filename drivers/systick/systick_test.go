package systick

import (
	"context"
	"testing"
	"time"

	"mcal-go/det"
	"mcal-go/errcode"
	"mcal-go/irq"
	"mcal-go/regfile"
	"mcal-go/sim"
	"mcal-go/types"
)

type rig struct {
	s     *regfile.Sim
	rec   *det.Recorder
	tab   *irq.Table
	model *sim.SysTickModel
	t     *Timer
}

func newRig() *rig {
	s := regfile.NewSim()
	r := &rig{s: s, rec: &det.Recorder{}, tab: &irq.Table{}}
	r.model = sim.SysTick(s, Bank, r.tab, uint8(irq.SysTick))
	r.t = New(s, r.rec)
	r.tab.Register(irq.SysTick, r.t.HandleInterrupt)
	return r
}

func (r *rig) ctrl() uint32 { return r.s.Peek(reg(regCTRL)) }

func TestInit(t *testing.T) {
	r := newRig()
	if err := r.t.Init(nil); err != errcode.NullPointer {
		t.Fatalf("nil cfg err=%v", err)
	}
	if err := r.t.Init(&Config{Clock: AHB, Mode: BusyWait}); err != nil {
		t.Fatal(err)
	}
	if r.ctrl() != 1<<bitClkSource {
		t.Fatalf("CTRL=%#x", r.ctrl())
	}
	if err := r.t.Init(&Config{}); err != errcode.AlreadyInitialized {
		t.Fatalf("second init err=%v", err)
	}
	if r.rec.Count(SIDInit, EAlreadyInitialized) != 1 {
		t.Fatal("second init not reported")
	}
}

func TestInit_BadConfig(t *testing.T) {
	r := newRig()
	if err := r.t.Init(&Config{Clock: 2}); errcode.Of(err) != errcode.InvalidConfig {
		t.Fatalf("err=%v", err)
	}
	if err := r.t.Init(&Config{Mode: 3}); errcode.Of(err) != errcode.InvalidMode {
		t.Fatalf("err=%v", err)
	}
	if len(r.s.Writes()) != 0 {
		t.Fatal("rejected init wrote registers")
	}
}

func TestBeforeInit(t *testing.T) {
	r := newRig()
	if err := r.t.StartTimer(context.Background(), 1); err != errcode.NotInitialized {
		t.Fatalf("err=%v", err)
	}
	if r.t.GetTimeElapsed() != 0 || r.t.GetTimeRemaining() != 0 {
		t.Fatal("getters before init")
	}
	_ = r.t.StopTimer()
	_ = r.t.SetMode(Periodic)
	_ = r.t.DeInit()
	for _, sid := range []uint8{SIDStartTimer, SIDGetTimeElapsed, SIDGetTimeRemaining, SIDStopTimer, SIDSetMode, SIDDeInit} {
		if r.rec.Count(sid, EUninit) != 1 {
			t.Fatalf("sid %#x not reported as uninit", sid)
		}
	}
}

func TestBusyWait(t *testing.T) {
	r := newRig()
	r.model.Step = 250
	if err := r.t.Init(&Config{Clock: AHBDiv8, Mode: BusyWait}); err != nil {
		t.Fatal(err)
	}
	if err := r.t.StartTimer(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if r.s.Peek(reg(regLOAD)) != 2000 {
		t.Fatalf("LOAD=%d", r.s.Peek(reg(regLOAD)))
	}
	if r.ctrl()&(1<<bitEnable) != 0 {
		t.Fatal("counter left running after busy wait")
	}
}

func TestBusyWait_ContextCancel(t *testing.T) {
	r := newRig()
	// Step 0: the counter never moves, so only the context can end the wait.
	if err := r.t.Init(&Config{Mode: BusyWait}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.t.StartTimer(ctx, 1)
	if errcode.Of(err) != errcode.Timeout {
		t.Fatalf("err=%v", err)
	}
	if r.ctrl()&(1<<bitEnable) != 0 {
		t.Fatal("counter left running after cancel")
	}
}

func TestStartTimer_ValueRange(t *testing.T) {
	r := newRig()
	_ = r.t.Init(&Config{Mode: Periodic, Callback: func() {}})
	for _, v := range []uint32{0, (1<<loadBits-1)/ticksPerUnit + 1} {
		if err := r.t.StartTimer(context.Background(), v); err != errcode.InvalidValue {
			t.Fatalf("value %d err=%v", v, err)
		}
	}
	if err := r.t.StartTimer(context.Background(), (1<<loadBits-1)/ticksPerUnit); err != nil {
		t.Fatal(err)
	}
}

func TestIntervalNeedsCallback(t *testing.T) {
	r := newRig()
	_ = r.t.Init(&Config{Mode: SingleInterval})
	if err := r.t.StartTimer(context.Background(), 1); err != errcode.NullPointer {
		t.Fatalf("err=%v", err)
	}
	if r.rec.Count(SIDStartTimer, EParamPointer) != 1 {
		t.Fatal("not reported")
	}
	if r.ctrl()&(1<<bitEnable) != 0 {
		t.Fatal("counter started without callback")
	}
}

func TestSingleInterval(t *testing.T) {
	r := newRig()
	fired := 0
	_ = r.t.Init(&Config{Mode: SingleInterval, Callback: func() { fired++ }})
	if err := r.t.StartTimer(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if r.ctrl()&(1<<bitTickInt|1<<bitEnable) != 1<<bitTickInt|1<<bitEnable {
		t.Fatalf("CTRL=%#x", r.ctrl())
	}
	r.model.Advance(1 + 1000)
	if fired != 1 {
		t.Fatalf("fired=%d", fired)
	}
	if r.ctrl()&(1<<bitTickInt|1<<bitEnable|1<<bitCountFlag) != 0 {
		t.Fatalf("one-shot left CTRL=%#x", r.ctrl())
	}
	r.model.Advance(5000)
	if fired != 1 {
		t.Fatalf("fired again: %d", fired)
	}
}

func TestPeriodic(t *testing.T) {
	r := newRig()
	fired := 0
	_ = r.t.Init(&Config{Mode: Periodic, Callback: func() { fired++ }})
	if err := r.t.StartTimer(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		r.model.Advance(1 + 1000)
	}
	if fired != 3 {
		t.Fatalf("fired=%d", fired)
	}
	if r.ctrl()&(1<<bitEnable) == 0 {
		t.Fatal("periodic timer stopped")
	}

	r.model.Advance(401)
	if got := r.t.GetTimeRemaining(); got != 600 {
		t.Fatalf("remaining=%d", got)
	}
	if got := r.t.GetTimeElapsed(); got != 400 {
		t.Fatalf("elapsed=%d", got)
	}

	if err := r.t.SetMode(BusyWait); err != errcode.Busy {
		t.Fatalf("SetMode while running err=%v", err)
	}
	if err := r.t.StopTimer(); err != nil {
		t.Fatal(err)
	}
	if r.ctrl()&(1<<bitEnable) != 0 || r.s.Peek(reg(regVAL)) != 0 {
		t.Fatal("stop did not halt")
	}
	if err := r.t.SetMode(BusyWait); err != nil || r.t.Mode() != BusyWait {
		t.Fatalf("SetMode after stop err=%v", err)
	}
	if err := r.t.SetMode(7); err != errcode.InvalidMode {
		t.Fatalf("err=%v", err)
	}
}

func TestNotification(t *testing.T) {
	r := newRig()
	_ = r.t.Init(&Config{Mode: BusyWait})
	if err := r.t.EnableNotification(); err != errcode.InvalidMode {
		t.Fatalf("busy-wait enable err=%v", err)
	}
	_ = r.t.SetMode(Periodic)
	if err := r.t.EnableNotification(); err != errcode.NullPointer {
		t.Fatalf("no callback err=%v", err)
	}
	r.t.SetCallback(func() {})
	if err := r.t.EnableNotification(); err != nil || r.ctrl()&(1<<bitTickInt) == 0 {
		t.Fatalf("enable err=%v ctrl=%#x", err, r.ctrl())
	}
	if err := r.t.DisableNotification(); err != nil || r.ctrl()&(1<<bitTickInt) != 0 {
		t.Fatalf("disable err=%v ctrl=%#x", err, r.ctrl())
	}
}

func TestHandleInterrupt_NoCallbackReports(t *testing.T) {
	r := newRig()
	r.t.HandleInterrupt()
	if r.rec.Count(SIDStartTimer, EParamPointer) != 1 {
		t.Fatal("missing callback not reported")
	}
}

func TestDeInit(t *testing.T) {
	r := newRig()
	_ = r.t.Init(&Config{Mode: Periodic, Callback: func() {}})
	_ = r.t.StartTimer(context.Background(), 3)
	r.model.Advance(10)
	if err := r.t.DeInit(); err != nil {
		t.Fatal(err)
	}
	if r.ctrl() != 0 || r.s.Peek(reg(regVAL)) != 0 {
		t.Fatalf("CTRL=%#x VAL=%d", r.ctrl(), r.s.Peek(reg(regVAL)))
	}
	if err := r.t.Init(&Config{}); err != nil {
		t.Fatalf("re-init after DeInit: %v", err)
	}
}

func TestCalibration(t *testing.T) {
	r := newRig()
	c := r.t.Calibration()
	if c.TenMs != 9000 || c.Skew || c.NoRef {
		t.Fatalf("calib %+v", c)
	}
	// CALIB is read-only.
	r.s.Write(reg(regCALIB), 1<<bitNoRef|5)
	if c := r.t.Calibration(); c.TenMs != 9000 || c.NoRef {
		t.Fatalf("calib after write %+v", c)
	}
	r.s.Poke(reg(regCALIB), 1<<bitNoRef|1<<bitSkew|0xFFFFFFF)
	if c := r.t.Calibration(); c.TenMs != 0xFFFFFF || !c.Skew || !c.NoRef {
		t.Fatalf("calib fields %+v", c)
	}
}

func TestVersion(t *testing.T) {
	r := newRig()
	var vi types.VersionInfo
	if err := r.t.GetVersionInfo(&vi); err != nil || vi.ModuleID != ModuleID {
		t.Fatalf("vi=%+v err=%v", vi, err)
	}
	if err := r.t.GetVersionInfo(nil); err != errcode.NullPointer {
		t.Fatalf("err=%v", err)
	}
}
