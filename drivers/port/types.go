package port

// Mode selects the pin function. GPIO is 0; 1..9 pick an alternate
// function through the PCTL nibble; 10 is analog (ADC).
type Mode uint8

const (
	ModeGPIO  Mode = 0
	ModeUART  Mode = 1
	ModeSSI   Mode = 2
	ModeI2C   Mode = 3
	ModeM0PWM Mode = 4
	ModeM1PWM Mode = 5
	ModeQEI   Mode = 6 // IDX, PHA, PHB
	ModeCCP   Mode = 7
	ModeCAN   Mode = 8 // shares 8 with USB and NMI
	ModeADC   Mode = 10
)

type Direction uint8

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	}
	return "invalid"
}

type Resistor uint8

const (
	PullUp Resistor = iota
	PullDown
	NoResistor
)

// Level is the initial output level applied at Init.
type Level uint8

const (
	Low Level = iota
	High
	NoLevel
)

// PinDescriptor configures one logical pin.
type PinDescriptor struct {
	ID        PinID
	Mode      Mode
	Direction Direction
	Resistor  Resistor
	Initial   Level // output pins only

	DirectionChangeable bool
	ModeChangeable      bool

	// Disabled pins get input, pull-up, GPIO whatever else is set.
	Enabled bool
}

// Disabled returns the descriptor for a declared but unused pin.
func Disabled(id PinID) PinDescriptor {
	return PinDescriptor{ID: id, Mode: ModeGPIO, Direction: In, Resistor: PullUp, Initial: NoLevel}
}
