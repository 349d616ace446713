// Package irq is a software interrupt vector table. Peripheral models
// raise lines; drivers register the handlers that service them.
package irq

import "sync"

// Vector is an interrupt line number.
type Vector uint8

// Cortex-M3 / STM32F103 numbering. SysTick is an exception; the USARTs
// are external IRQ lines.
const (
	SysTick Vector = 15
	USART1  Vector = 37
	USART2  Vector = 38
	USART3  Vector = 39
)

// Handler services one interrupt.
type Handler func()

type entry struct{ fn Handler }

// Table maps vectors to handlers. The zero value is ready to use.
type Table struct {
	mu sync.RWMutex
	h  map[Vector]*entry
}

// Register installs fn for v, replacing any previous handler. The
// returned cancel removes it unless it has been replaced since.
func (t *Table) Register(v Vector, fn Handler) (cancel func()) {
	e := &entry{fn: fn}
	t.mu.Lock()
	if t.h == nil {
		t.h = make(map[Vector]*entry)
	}
	t.h[v] = e
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		if t.h[v] == e {
			delete(t.h, v)
		}
		t.mu.Unlock()
	}
}

// Dispatch runs the handler for v. It reports false for a spurious
// interrupt.
func (t *Table) Dispatch(v Vector) bool {
	t.mu.RLock()
	e := t.h[v]
	t.mu.RUnlock()
	if e == nil {
		return false
	}
	e.fn()
	return true
}

// RaiseIRQ lets a Table act as the interrupt controller for sim models.
func (t *Table) RaiseIRQ(line uint8) { t.Dispatch(Vector(line)) }
