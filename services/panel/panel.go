// Package panel draws the PORT pin map on a Sharp memory LCD. Each pin is
// an 8x8 cell, eight to a row in the order given: outputs get an outline
// and a high level fills the centre.
package panel

import (
	"image/color"
	"slices"

	"periph.io/x/conn/v3/gpio"
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/sharpmem"

	"mcal-go/errcode"
	"mcal-go/types"
)

const (
	cell   = 8
	perRow = 8
	fillLo = 2
	fillHi = 5
)

// sharpmem keeps black as a set bit over its 0xFF cleared buffer, so any
// other colour clears the bit and shows dark on the glass.
var ink = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}

type Config struct {
	Bus drivers.SPI // mode 0, LSB first
	CS  gpio.PinOut // active high
	// Zero selects the 160x68 LS011B7DH03.
	Width, Height int16
}

type Panel struct {
	dev  sharpmem.Device
	cs   *selectLine
	last []types.PinState
	held bool
}

// selectLine adapts a periph output to the sharpmem chip-select, keeping
// the first error for the next Render.
type selectLine struct {
	p   gpio.PinOut
	err error
}

func (s *selectLine) set(l gpio.Level) {
	if err := s.p.Out(l); err != nil && s.err == nil {
		s.err = err
	}
}

func (s *selectLine) High() { s.set(gpio.High) }
func (s *selectLine) Low()  { s.set(gpio.Low) }

func (s *selectLine) take() error {
	err := s.err
	s.err = nil
	return err
}

func New(cfg Config) (*Panel, error) {
	if cfg.Bus == nil || cfg.CS == nil {
		return nil, errcode.Wrap(errcode.InvalidConfig, "panel.New", "bus and chip select required")
	}
	p := &Panel{cs: &selectLine{p: cfg.CS}}
	p.dev = sharpmem.New(cfg.Bus, p.cs)
	p.dev.Configure(sharpmem.Config{Width: cfg.Width, Height: cfg.Height})
	if err := p.cs.take(); err != nil {
		return nil, err
	}
	return p, nil
}

// Size is the glass resolution in pixels.
func (p *Panel) Size() (w, h int16) { return p.dev.Size() }

// Capacity is how many pins fit on the glass.
func (p *Panel) Capacity() int {
	w, h := p.dev.Size()
	cols := min(int(w)/cell, perRow)
	return cols * (int(h) / cell)
}

// Render draws pins and updates the glass. Pins past Capacity are not
// shown. An unchanged pin list only toggles VCOM, which the glass needs at
// least once a second.
func (p *Panel) Render(pins []types.PinState) error {
	if len(pins) > p.Capacity() {
		pins = pins[:p.Capacity()]
	}
	p.held = p.last != nil && slices.Equal(pins, p.last)
	if !p.held {
		p.dev.ClearBuffer()
		for i, ps := range pins {
			p.draw(i, ps)
		}
		p.last = slices.Clone(pins)
	}
	if err := p.dev.Display(); err != nil {
		return &errcode.E{C: errcode.Of(err), Op: "panel.Render", Err: err}
	}
	return p.cs.take()
}

// Held reports whether the last Render only toggled VCOM.
func (p *Panel) Held() bool { return p.held }

func (p *Panel) draw(i int, ps types.PinState) {
	x0 := int16(i%perRow) * cell
	y0 := int16(i/perRow) * cell
	if ps.Output {
		for d := int16(0); d < cell; d++ {
			p.dev.SetPixel(x0+d, y0, ink)
			p.dev.SetPixel(x0+d, y0+cell-1, ink)
			p.dev.SetPixel(x0, y0+d, ink)
			p.dev.SetPixel(x0+cell-1, y0+d, ink)
		}
	}
	if !ps.Level {
		return
	}
	for y := int16(fillLo); y <= fillHi; y++ {
		for x := int16(fillLo); x <= fillHi; x++ {
			p.dev.SetPixel(x0+x, y0+y, ink)
		}
	}
}
