package stream

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSServer exposes the Broadcaster over a WebSocket endpoint, one JSON
// message per captured packet.
type WSServer struct {
	broadcaster *Broadcaster
	log         *slog.Logger
}

// NewWSServer builds a WSServer over broadcaster.
func NewWSServer(broadcaster *Broadcaster, log *slog.Logger) *WSServer {
	return &WSServer{broadcaster: broadcaster, log: log}
}

// Router returns a mux.Router with the /capture/stream endpoint mounted,
// ready to be handed to http.Server.
func (s *WSServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/capture/stream", s.handleStream)
	r.HandleFunc("/healthz", s.handleHealthz)
	return r
}

func (s *WSServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *WSServer) handleStream(w http.ResponseWriter, r *http.Request) {
	var pid uint32
	if v := r.URL.Query().Get("pid"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			http.Error(w, "invalid pid", http.StatusBadRequest)
			return
		}
		pid = uint32(parsed)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.log != nil {
			s.log.Warn("websocket upgrade failed", "error", err)
		}
		return
	}
	defer conn.Close()

	ch, unsub := s.broadcaster.Subscribe(pid)
	defer unsub()

	for pkt := range ch {
		if err := conn.WriteJSON(wireMessage{
			SessionID: pkt.SessionId,
			Pid:       pkt.Pid,
			Direction: int32(pkt.Direction),
			Opcode:    pkt.Opcode,
			Data:      pkt.Data,
		}); err != nil {
			return
		}
	}
}

// wireMessage is the JSON shape sent over the WebSocket, separate from
// capture.CapturedPacket so the wire format doesn't depend on protobuf's
// json tags.
type wireMessage struct {
	SessionID string `json:"session_id"`
	Pid       uint32 `json:"pid"`
	Direction int32  `json:"direction"`
	Opcode    uint32 `json:"opcode"`
	Data      []byte `json:"data"`
}
