package types

// UARTEvent is one framed chunk of serial bytes.
type UARTEvent struct {
	DevID string `json:"dev"`
	Data  []byte `json:"data"`
	TS    int64  `json:"ts_ns"`
}
