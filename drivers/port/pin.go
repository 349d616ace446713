package port

import "mcal-go/types"

// Pin is a handle on one configured pin. It satisfies the pin muxing
// needs of peripheral drivers.
type Pin struct {
	e  *Engine
	id PinID
}

// Pin returns a handle for id. The id is checked when the handle is used.
func (e *Engine) Pin(id PinID) Pin { return Pin{e: e, id: id} }

func (p Pin) ID() PinID    { return p.id }
func (p Pin) Name() string { return p.e.lay.Name(p.id) }

func (p Pin) SetInput() error                { return p.e.SetDirection(p.id, In) }
func (p Pin) SetOutput() error               { return p.e.SetDirection(p.id, Out) }
func (p Pin) SetMode(m Mode) error           { return p.e.SetMode(p.id, m) }
func (p Pin) State() (types.PinState, error) { return p.e.State(p.id) }

func (p Pin) Output() (bool, error) {
	st, err := p.e.State(p.id)
	return st.Output, err
}
