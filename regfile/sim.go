package regfile

import "sync"

// Op distinguishes trace entries.
type Op uint8

const (
	OpRead Op = iota
	OpWrite
)

func (o Op) String() string {
	if o == OpWrite {
		return "W"
	}
	return "R"
}

// Access is one traced register access. Value is what the caller saw
// (reads) or what was stored (writes).
type Access struct {
	Op    Op
	Addr  Addr
	Value uint32
}

// ReadHook may rewrite the value returned for a read and mutate other
// registers through r.
type ReadHook func(r Raw, a Addr, v uint32) uint32

// WriteHook returns the value actually stored for a write of v over old.
type WriteHook func(r Raw, a Addr, old, v uint32) uint32

// Sim is an in-memory register file. Unwritten registers read as zero.
// It is safe for concurrent use; hooks run with the file locked.
type Sim struct {
	mu     sync.Mutex
	regs   map[Addr]uint32
	trace  []Access
	rhooks map[Addr]ReadHook
	whooks map[Addr]WriteHook
	after  []func()
	quiet  bool
}

func NewSim() *Sim {
	return &Sim{
		regs:   make(map[Addr]uint32),
		rhooks: make(map[Addr]ReadHook),
		whooks: make(map[Addr]WriteHook),
	}
}

// Raw is the unlocked view handed to hooks.
type Raw struct{ s *Sim }

func (r Raw) Get(a Addr) uint32    { return r.s.regs[a] }
func (r Raw) Set(a Addr, v uint32) { r.s.regs[a] = v }

// After queues fn to run once the current access has released the lock.
// Models use it to raise interrupts that re-enter the file.
func (r Raw) After(fn func()) { r.s.after = append(r.s.after, fn) }

func (s *Sim) Read(a Addr) uint32 {
	s.mu.Lock()
	v := s.regs[a]
	if h := s.rhooks[a]; h != nil {
		v = h(Raw{s}, a, v)
	}
	if !s.quiet {
		s.trace = append(s.trace, Access{Op: OpRead, Addr: a, Value: v})
	}
	pending := s.takeAfter()
	s.mu.Unlock()
	runAll(pending)
	return v
}

func (s *Sim) Write(a Addr, v uint32) {
	s.mu.Lock()
	if h := s.whooks[a]; h != nil {
		v = h(Raw{s}, a, s.regs[a], v)
	}
	s.regs[a] = v
	if !s.quiet {
		s.trace = append(s.trace, Access{Op: OpWrite, Addr: a, Value: v})
	}
	pending := s.takeAfter()
	s.mu.Unlock()
	runAll(pending)
}

func (s *Sim) takeAfter() []func() {
	if len(s.after) == 0 {
		return nil
	}
	p := s.after
	s.after = nil
	return p
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

// Peek reads without hooks or tracing.
func (s *Sim) Peek(a Addr) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[a]
}

// Poke writes without hooks or tracing. Tests use it to model state
// changed behind the driver's back.
func (s *Sim) Poke(a Addr, v uint32) {
	s.mu.Lock()
	s.regs[a] = v
	s.mu.Unlock()
}

// Update applies fn to the raw view under the lock, then runs any
// queued After callbacks. Peripheral models use it for external events.
func (s *Sim) Update(fn func(r Raw)) {
	s.mu.Lock()
	fn(Raw{s})
	pending := s.takeAfter()
	s.mu.Unlock()
	runAll(pending)
}

func (s *Sim) OnRead(a Addr, h ReadHook) {
	s.mu.Lock()
	s.rhooks[a] = h
	s.mu.Unlock()
}

func (s *Sim) OnWrite(a Addr, h WriteHook) {
	s.mu.Lock()
	s.whooks[a] = h
	s.mu.Unlock()
}

// Trace returns a copy of every traced access since the last reset.
func (s *Sim) Trace() []Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Access, len(s.trace))
	copy(out, s.trace)
	return out
}

// Writes returns only the traced writes.
func (s *Sim) Writes() []Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Access
	for _, acc := range s.trace {
		if acc.Op == OpWrite {
			out = append(out, acc)
		}
	}
	return out
}

// SetTracing turns access tracing on or off. Long-running simulations
// disable it.
func (s *Sim) SetTracing(on bool) {
	s.mu.Lock()
	s.quiet = !on
	s.mu.Unlock()
}

func (s *Sim) ResetTrace() {
	s.mu.Lock()
	s.trace = s.trace[:0]
	s.mu.Unlock()
}
