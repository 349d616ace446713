package config

// Embedded board descriptions, keyed by board name.

const boardLaunchpad = `{
  "name": "tm4c123_launchpad",
  "pins": [
    {"pin": "PF0", "direction": "in", "resistor": "pullup", "enabled": true},
    {"pin": "PF1", "direction": "out", "initial": "low", "enabled": true},
    {"pin": "PF2", "direction": "out", "initial": "low", "enabled": true},
    {"pin": "PF3", "direction": "out", "initial": "low", "enabled": true},
    {"pin": "PF4", "direction": "in", "resistor": "pullup", "enabled": true},
    {"pin": "PB0", "mode": 1, "direction": "in", "direction_changeable": true, "mode_changeable": true, "enabled": true},
    {"pin": "PB1", "mode": 1, "direction": "out", "direction_changeable": true, "mode_changeable": true, "enabled": true},
    {"pin": "PE3", "mode": 10, "direction": "in", "enabled": true},
    {"pin": "PD7", "direction": "out", "initial": "high", "direction_changeable": true, "enabled": true}
  ],
  "usart": [
    {"id": "usart1", "baud": 9600, "word_length": 8, "stop_bits": "1", "mode": "txrx",
     "parity": "none", "tx": "PB1", "rx": "PB0", "pin_mode": 1, "enabled": true}
  ],
  "systick": {"clock": "ahb_div8", "mode": "periodic"}
}`

const boardBlank = `{
  "name": "tm4c123_blank",
  "pins": [],
  "usart": [],
  "systick": {"clock": "ahb_div8", "mode": "busy_wait"}
}`

var embeddedBoards = map[string][]byte{
	"tm4c123_launchpad": []byte(boardLaunchpad),
	"tm4c123_blank":     []byte(boardBlank),
}
