package det

import (
	"mcal-go/bus"
	"mcal-go/types"
)

// TopicPrefix roots every published report: det/<module>.
const TopicPrefix = "det"

// BusReporter publishes each report as a types.DetEvent.
type BusReporter struct {
	conn *bus.Connection
}

func NewBusReporter(conn *bus.Connection) *BusReporter {
	return &BusReporter{conn: conn}
}

func (r *BusReporter) ReportError(module uint16, instance, service, code uint8) {
	ev := types.DetEvent{
		Module:   module,
		Instance: instance,
		Service:  service,
		Error:    code,
		Code:     string(CodeOf(module, code)),
	}
	r.conn.Publish(r.conn.NewMessage(bus.T(TopicPrefix, int(module)), ev, false))
}
