package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// frame is one server-to-client websocket message.
type frame struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Specialist string `json:"specialist,omitempty"`
	Error      string `json:"error,omitempty"`
}

const (
	frameFragment = "fragment"
	frameDone     = "done"
	frameError    = "error"
)

// handleStream runs one turn per client message. A message is either a JSON
// object {"utterance": "..."} or plain text. Fragments are pushed as soon as
// the workflow yields them.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, sess *session) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	logger := s.logger.With(zap.String("session", sess.id))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		utterance := parseUtterance(msg)
		if utterance == "" {
			if err := conn.WriteJSON(frame{Type: frameError, Error: "utterance is required"}); err != nil {
				return
			}
			continue
		}
		if err := s.streamTurn(r.Context(), conn, sess, utterance); err != nil {
			logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) streamTurn(ctx context.Context, conn *websocket.Conn, sess *session, utterance string) error {
	ctx, cancel := context.WithTimeout(ctx, s.turnTimeout)
	defer cancel()

	turn := sess.wf.RunTurn(ctx, utterance)
	defer turn.Close()
	for turn.Next() {
		if err := conn.WriteJSON(frame{Type: frameFragment, Text: turn.Current()}); err != nil {
			return err
		}
	}
	if err := turn.Err(); err != nil {
		return conn.WriteJSON(frame{Type: frameError, Error: err.Error(), Specialist: sess.wf.Current().Name})
	}
	return conn.WriteJSON(frame{Type: frameDone, Specialist: sess.wf.Current().Name})
}

func parseUtterance(msg []byte) string {
	text := strings.TrimSpace(string(msg))
	if !strings.HasPrefix(text, "{") {
		return text
	}
	var req turnReq
	if err := json.Unmarshal(msg, &req); err != nil {
		return ""
	}
	return strings.TrimSpace(req.Utterance)
}
