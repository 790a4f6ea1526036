package bulk_operation

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ProgressStream serves live progress of one operation over a websocket.
type ProgressStream struct {
	service BulkOperationService
	log     *zap.Logger
}

func NewProgressStream(service BulkOperationService, log *zap.Logger) *ProgressStream {
	return &ProgressStream{service: service, log: log.Named("bulk_ws")}
}

// Upgrade rejects plain HTTP requests to the stream endpoint.
func (s *ProgressStream) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (s *ProgressStream) Handler() fiber.Handler {
	return websocket.New(s.handle)
}

func (s *ProgressStream) handle(c *websocket.Conn) {
	id := c.Params("id")
	log := s.log.With(zap.String("operation_id", id))

	// Subscribe before reading the snapshot so no transition is missed in between.
	events, unsubscribe := s.service.Subscribe(id)
	defer unsubscribe()

	op, err := s.service.Get(context.Background(), id)
	if err != nil {
		_ = c.WriteJSON(fiber.Map{"error": err.Error(), "code": ErrorCode(err)})
		return
	}
	if err := c.WriteJSON(NewProgressEvent(op, time.Now())); err != nil {
		return
	}
	if op.Status.IsTerminal() {
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			log.Debug("Progress stream client disconnected")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := c.WriteJSON(ev); err != nil {
				log.Debug("Progress stream write failed", zap.Error(err))
				return
			}
			if ev.Status.IsTerminal() {
				return
			}
		}
	}
}
