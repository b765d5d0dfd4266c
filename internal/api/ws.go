package api

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mincheol-dev/chessmatch/internal/obslog"
	"github.com/mincheol-dev/chessmatch/internal/session"
)

// wsSender adapts a websocket connection to the coordinator's Sender.
// The write mutex keeps concurrent broadcasts from interleaving frames.
type wsSender struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsSender) Send(ctx context.Context, ev session.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return wsjson.Write(ctx, w.conn, ev)
}

// handleWS upgrades the request and pumps envelopes into the
// coordinator until the client goes away.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.Error(err))
		return
	}

	sender := &wsSender{conn: conn}
	cc := s.coord.Connect(sender)
	obslog.L().Info("client_connected", zap.String("conn_id", cc.ID()))

	defer func() {
		s.coord.HandleDisconnect(cc)
		_ = conn.Close(websocket.StatusNormalClosure, "")
		obslog.L().Info("client_disconnected", zap.String("conn_id", cc.ID()))
	}()

	ctx := c.Request.Context()
	for {
		var env session.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return
		}

		switch env.Event {
		case session.EvtJoinRoom:
			var data session.JoinRoomData
			if err := json.Unmarshal(env.Data, &data); err != nil {
				s.sendError(ctx, sender, "malformed join_room payload")
				continue
			}
			s.coord.HandleJoin(ctx, cc, data)
		case session.EvtPlayerMove:
			var data session.PlayerMoveData
			if err := json.Unmarshal(env.Data, &data); err != nil {
				s.sendError(ctx, sender, "malformed player_move payload")
				continue
			}
			s.coord.HandleMove(ctx, cc, data)
		default:
			s.sendError(ctx, sender, "unknown event: "+env.Event)
		}
	}
}

func (s *Server) sendError(ctx context.Context, sender *wsSender, msg string) {
	_ = sender.Send(ctx, session.Event{
		Event: session.EvtError,
		Data:  session.ErrorData{Message: msg},
	})
}
