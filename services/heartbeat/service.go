// Package heartbeat publishes periodic stack status on the bus.
package heartbeat

import (
	"context"
	"time"

	"mcal-go/bus"
	"mcal-go/types"
	"mcal-go/x/timex"
)

var (
	TopicConfig = bus.T("config", "heartbeat")
	TopicBeat   = bus.T("heartbeat")
)

const DefaultInterval = time.Second

// Stats samples the counters each beat carries.
type Stats func() (ticks uint32, reports int)

type Service struct {
	Interval time.Duration // 0 selects DefaultInterval
	Stats    Stats
}

func (s *Service) beat(conn *bus.Connection, start time.Time) {
	hb := types.Heartbeat{TS: timex.NowNs(), UptimeMs: time.Since(start).Milliseconds()}
	if s.Stats != nil {
		hb.Ticks, hb.Reports = s.Stats()
	}
	conn.Publish(conn.NewMessage(TopicBeat, hb, false))
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(TopicConfig)
	defer conn.Unsubscribe(cfgSub)

	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	start := time.Now()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.beat(conn, start)
		case msg := <-cfgSub.Channel():
			// {"interval_ms": n} changes the period.
			if m, ok := msg.Payload.(map[string]any); ok {
				if iv, ok := m["interval_ms"].(float64); ok && iv > 0 {
					tick.Reset(time.Duration(iv) * time.Millisecond)
				}
			}
		}
	}
}

// Start runs the heartbeat loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
