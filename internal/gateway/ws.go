package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/hireorbit/interviewd/internal/session"
)

// endSignal is the text frame a client sends to close out a recording.
// Binary frames before it carry the audio fragments.
type endSignal struct {
	Type       string `json:"type"`
	SessionKey string `json:"session_key"`
	Name       string `json:"name"`
	Email      string `json:"email"`
}

// endSignalType is the only recognised text frame type.
const endSignalType = "room_message_end"

// roomReply is the text frame sent back after a recording is processed. When
// synthesized audio is available it follows as one binary frame.
type roomReply struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript,omitempty"`
	Reply      string `json:"reply,omitempty"`
	Finished   bool   `json:"finished,omitempty"`
}

const (
	// replyType marks a processed recording: transcript plus interviewer reply.
	replyType = "room_reply"

	// ackType acknowledges an end signal that arrived with no buffered audio.
	ackType = "room_message_ack"
)

// roomError is the text frame sent when a recording cannot be processed. The
// connection stays open; the client may record again.
type roomError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// handleRoom serves GET /ws/rooms/{roomID}. Each connection belongs to one
// candidate's recording room: binary frames accumulate in the aggregator until
// an end signal flushes them through transcription and the reply round-trip.
func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")

	// Candidates connect from the hiring frontend on a different origin.
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "room", roomID, "error", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "server shutting down")

	s.metrics.ActiveRooms.Add(r.Context(), 1)
	defer s.metrics.ActiveRooms.Add(context.Background(), -1)
	defer s.agg.Drop(roomID)

	s.logger.Debug("room opened", "room", roomID)

	ctx := r.Context()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				c.Close(websocket.StatusNormalClosure, "")
			} else if ctx.Err() == nil {
				s.logger.Debug("room read failed", "room", roomID, "error", err)
			}
			return
		}

		switch typ {
		case websocket.MessageBinary:
			s.agg.Append(roomID, data)
		case websocket.MessageText:
			if err := s.finishRecording(ctx, c, roomID, data); err != nil {
				return
			}
		}
	}
}

// finishRecording handles an end-signal text frame: flush the room's buffered
// audio, run it through the interview round-trip, and send the reply frames.
// A non-nil return means the connection is unusable and should be dropped.
func (s *Server) finishRecording(ctx context.Context, c *websocket.Conn, roomID string, data []byte) error {
	var sig endSignal
	if err := json.Unmarshal(data, &sig); err != nil || sig.Type != endSignalType {
		return writeText(ctx, c, roomError{Type: "error", Error: "expected a room_message_end signal"})
	}

	audio := s.agg.Flush(roomID)
	if len(audio) == 0 {
		// End signal without any buffered audio: acknowledge and move on.
		return writeText(ctx, c, roomReply{Type: ackType})
	}

	ex, transcript, err := s.svc.AudioReply(ctx, session.ReplyRequest{
		SessionKey: sig.SessionKey,
		Name:       sig.Name,
		Email:      sig.Email,
	}, audio)
	if err != nil {
		s.logger.Warn("recording round-trip failed",
			"room", roomID,
			"session_key", sig.SessionKey,
			"error", err,
		)
		return writeText(ctx, c, roomError{Type: "error", Error: err.Error()})
	}

	if err := writeText(ctx, c, roomReply{
		Type:       replyType,
		Transcript: transcript,
		Reply:      ex.Turn.Content,
		Finished:   ex.Finished,
	}); err != nil {
		return err
	}

	speech, err := s.svc.Synthesize(ctx, ex.Turn.Content)
	if err != nil {
		// The text reply already went out; a synthesis failure only costs
		// the audio rendition.
		s.logger.Warn("reply synthesis failed", "room", roomID, "error", err)
		return nil
	}
	if len(speech) > 0 {
		return c.Write(ctx, websocket.MessageBinary, speech)
	}
	return nil
}

// writeText marshals v and sends it as one text frame.
func writeText(ctx context.Context, c *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Write(ctx, websocket.MessageText, b)
}

// RunSweeper drops idle rooms on a fixed cadence until ctx is cancelled.
// Intended to run in its own goroutine for the lifetime of the server.
func (s *Server) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if dropped := s.agg.Sweep(); dropped > 0 {
				s.logger.Info("swept idle rooms", "dropped", dropped)
			}
		}
	}
}
