package config

import (
	"context"
	"errors"

	"mcal-go/bus"
)

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxBoardKey  = "board" // context key carrying the board name
)

// Topics the service publishes, all retained.
var (
	TopicBoard = bus.T(configPrefix, "board")
	TopicError = bus.T(configPrefix, "error")
)

type Service struct {
	Name string
}

func NewService() *Service {
	return &Service{Name: serviceName}
}

// Publish announces b retained on the board topic and one retained
// message per section.
func Publish(conn *bus.Connection, b *Board) {
	conn.Publish(conn.NewMessage(TopicBoard, b, true))
	conn.Publish(conn.NewMessage(bus.T(configPrefix, "pins"), b.Pins, true))
	conn.Publish(conn.NewMessage(bus.T(configPrefix, "usart"), b.USART, true))
	if b.SysTick != nil {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, "systick"), *b.SysTick, true))
	}
}

func (s *Service) publishBoard(ctx context.Context, conn *bus.Connection) error {
	name, _ := ctx.Value(CtxBoardKey).(string)
	if name == "" {
		return errors.New("missing board name in context")
	}
	b, err := Load(name)
	if err != nil {
		return err
	}
	Publish(conn, b)
	return nil
}

// Start resolves the board named in ctx and publishes it in the
// background. A failure is published retained on TopicError.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishBoard(ctx, conn); err != nil {
			conn.Publish(conn.NewMessage(TopicError, err.Error(), true))
		}
	}()
}
