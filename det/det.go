// Package det is the development error tracer: the sink driver modules
// report contract violations to.
package det

import (
	"sync"

	"mcal-go/errcode"
)

// Reporter receives development errors. Implementations must not block.
type Reporter interface {
	ReportError(module uint16, instance, service, code uint8)
}

// Report is one recorded development error.
type Report struct {
	Module   uint16
	Instance uint8
	Service  uint8
	Error    uint8
}

// Func adapts a plain function to Reporter.
type Func func(module uint16, instance, service, code uint8)

func (f Func) ReportError(module uint16, instance, service, code uint8) {
	f(module, instance, service, code)
}

// Discard drops every report.
var Discard Reporter = Func(func(uint16, uint8, uint8, uint8) {})

// Multi fans a report out to every non-nil reporter in order.
func Multi(rs ...Reporter) Reporter {
	out := make(multi, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multi []Reporter

func (m multi) ReportError(module uint16, instance, service, code uint8) {
	for _, r := range m {
		r.ReportError(module, instance, service, code)
	}
}

// ---- code names ----

type codeKey struct {
	module uint16
	code   uint8
}

var (
	namesMu sync.RWMutex
	names   = map[codeKey]errcode.Code{}
)

// RegisterCodes records the errcode each of a module's error ids maps to.
// Driver packages call it from init.
func RegisterCodes(module uint16, codes map[uint8]errcode.Code) {
	namesMu.Lock()
	defer namesMu.Unlock()
	for id, c := range codes {
		names[codeKey{module, id}] = c
	}
}

// CodeOf returns the registered errcode for a module error id, or "".
func CodeOf(module uint16, code uint8) errcode.Code {
	namesMu.RLock()
	defer namesMu.RUnlock()
	return names[codeKey{module, code}]
}
