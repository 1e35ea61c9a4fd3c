package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gameshowlab/podium/internal/session"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Conn is one websocket subscriber.
type Conn struct {
	ID   string
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte

	// room is guarded by the hub's lock.
	room string
}

// command is the inbound client message shape.
type command struct {
	Type  string         `json:"type"`
	Code  string         `json:"code"`
	Seat  session.SeatID `json:"seat"`
	Name  string         `json:"name"`
	Token string         `json:"token"`
}

const (
	cmdSubscribeAdmin  = "subscribe_admin"
	cmdSubscribeSeat   = "subscribe_seat"
	cmdBuzz            = "buzz"
	cmdAdminUnlock     = "admin_unlock"
	cmdRequestSnapshot = "request_snapshot"
)

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.hub.remove(c)
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.remove(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.hub.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			break
		}
		c.dispatch(message)
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}

// dispatch routes one inbound command to the coordinator.
func (c *Conn) dispatch(message []byte) {
	if c.hub.handler == nil {
		return
	}

	var cmd command
	if err := json.Unmarshal(message, &cmd); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("unparseable client command")
		return
	}

	ctx := context.Background()
	switch cmd.Type {
	case cmdSubscribeAdmin:
		c.hub.handler.SubscribeAdmin(ctx, c.ID, cmd.Code)
	case cmdSubscribeSeat:
		c.hub.handler.SubscribeSeat(ctx, c.ID, cmd.Code, cmd.Seat, cmd.Name, cmd.Token)
	case cmdBuzz:
		c.hub.handler.Buzz(ctx, c.ID, cmd.Code, cmd.Seat, cmd.Name, cmd.Token)
	case cmdAdminUnlock:
		c.hub.handler.AdminUnlock(ctx, cmd.Code)
	case cmdRequestSnapshot:
		c.hub.handler.RequestSnapshot(ctx, c.ID, cmd.Code)
	default:
		log.Debug().Str("connection_id", c.ID).Str("type", cmd.Type).Msg("unknown client command")
	}
}
