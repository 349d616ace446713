package types

// PinState is a register read-back of one configured pin.
type PinState struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Output    bool   `json:"output"`
	Level     bool   `json:"level"`
	PullUp    bool   `json:"pull_up,omitempty"`
	PullDown  bool   `json:"pull_down,omitempty"`
	AltFunc   bool   `json:"alt_func,omitempty"`
	Digital   bool   `json:"digital"`
	Analog    bool   `json:"analog,omitempty"`
	Mode      uint8  `json:"mode"`
	Committed bool   `json:"committed"`
}

// BoardState is retained on config/board once a board has been applied.
type BoardState struct {
	Name   string `json:"name"`
	Pins   int    `json:"pins"`
	USARTs int    `json:"usarts"`
	Level  string `json:"level"` // "ready" or "error"
	Error  string `json:"error,omitempty"`
}
