package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	maxMessageSize = 1024 * 1024
	sendBuffer     = 16
)

var (
	// ErrConnectionClosed is returned when writing to a closed session.
	ErrConnectionClosed = errors.New("ws: connection closed")
	// ErrSendBufferFull is returned when the peer does not keep up with outgoing frames.
	ErrSendBufferFull = errors.New("ws: send buffer full")
)

// MessageProcessor handles raw OCPP frames of one charge point.
type MessageProcessor interface {
	Process(ctx context.Context, chargePointID string, raw []byte) ([]byte, error)
}

// Connection is a charge point WebSocket session. Inbound frames are processed one at a time
// in arrival order; all writes go through the write pump.
type Connection struct {
	chargePointID string
	ws            *websocket.Conn
	send          chan []byte
	done          chan struct{}
	closeOnce     sync.Once

	processor    MessageProcessor
	writeTimeout time.Duration
	readTimeout  time.Duration
	logger       *zap.Logger
	onClose      func(*Connection)
}

// NewConnection wraps an upgraded socket. onClose runs once the read loop ends.
func NewConnection(chargePointID string, conn *websocket.Conn, processor MessageProcessor, writeTimeout, readTimeout time.Duration, logger *zap.Logger, onClose func(*Connection)) *Connection {
	return &Connection{
		chargePointID: chargePointID,
		ws:            conn,
		send:          make(chan []byte, sendBuffer),
		done:          make(chan struct{}),
		processor:     processor,
		writeTimeout:  writeTimeout,
		readTimeout:   readTimeout,
		logger:        logger.With(zap.String("charge_point_id", chargePointID)),
		onClose:       onClose,
	}
}

// ChargePointID returns the session identifier.
func (c *Connection) ChargePointID() string {
	return c.chargePointID
}

// Start runs the pumps and returns when the session ends.
func (c *Connection) Start(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
}

func (c *Connection) readPump(ctx context.Context) {
	defer func() {
		_ = c.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("connection read closed", zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))

		response, err := c.processor.Process(ctx, c.chargePointID, message)
		if err != nil {
			c.logger.Warn("dropping inbound frame", zap.Error(err))
			continue
		}
		if response != nil {
			if err := c.Send(response); err != nil {
				c.logger.Warn("failed to queue response", zap.Error(err))
			}
		}
	}
}

func (c *Connection) writePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Info("write failed, closing", zap.Error(err))
				_ = c.Close()
				return
			}
		}
	}
}

// Send queues a frame for writing.
func (c *Connection) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Ping writes a ping control frame.
func (c *Connection) Ping() error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Close ends the session. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeTimeout))
		err = c.ws.Close()
	})
	return err
}
