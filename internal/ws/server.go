package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"holdem-casino/internal/game"
	"holdem-casino/internal/hub"
	"holdem-casino/internal/room"
	"holdem-casino/internal/store"
)

const sendBuffer = 32

// Router is the hub side of the transport. *hub.Hub satisfies it.
type Router interface {
	Register(playerID string, conn hub.Conn)
	Unregister(playerID string, conn hub.Conn)
	JoinRoom(ctx context.Context, playerID, name, roomID string, buyIn int64) error
	LeaveRoom(playerID string) error
	SetReady(playerID string, ready bool) error
	Action(playerID string, action game.Action) error
}

// Sessions resolves raw session tokens to users.
type Sessions interface {
	ResolveSession(ctx context.Context, token string) (*store.User, error)
}

// Client is one websocket connection. playerID and name are written by
// the read loop only, before the client is registered anywhere.
type Client struct {
	conn *websocket.Conn
	send chan []byte

	playerID string
	name     string
}

// Send implements hub.Conn. Never blocks: a client too slow to drain
// its buffer loses frames and catches up on the next state broadcast.
func (c *Client) Send(msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	defer func() { _ = recover() }()
	select {
	case c.send <- b:
	default:
	}
}

type Server struct {
	router   Router
	sessions Sessions
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewServer(router Router, sessions Sessions, logger zerolog.Logger) *Server {
	return &Server{
		router:   router,
		sessions: sessions,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		log:      logger,
	}
}

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &Client{conn: conn, send: make(chan []byte, sendBuffer)}
	go s.writeLoop(client)
	s.readLoop(client)
}

func (s *Server) readLoop(c *Client) {
	defer func() {
		if c.playerID != "" {
			s.router.Unregister(c.playerID, c)
		}
		safeClose(c.send)
		_ = c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(c, msg)
	}
}

func (s *Server) writeLoop(c *Client) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (s *Server) handleMessage(c *Client, raw []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &base); err != nil {
		c.Send(ErrorMessage{Type: "error", Code: "bad_message"})
		return
	}

	if base.Type == "auth" {
		s.handleAuth(c, raw)
		return
	}
	if c.playerID == "" {
		c.Send(ErrorMessage{Type: "error", Code: "auth_required"})
		return
	}

	switch base.Type {
	case "join_room":
		var m JoinRoomMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			c.Send(ErrorMessage{Type: "error", Code: "bad_message"})
			return
		}
		if err := s.router.JoinRoom(context.Background(), c.playerID, c.name, m.RoomID, m.BuyIn); err != nil {
			c.Send(ErrorMessage{Type: "error", Code: errorCode(err)})
		}
	case "leave_room":
		if err := s.router.LeaveRoom(c.playerID); err != nil {
			c.Send(ErrorMessage{Type: "error", Code: errorCode(err)})
		}
	case "ready", "unready":
		if err := s.router.SetReady(c.playerID, base.Type == "ready"); err != nil {
			c.Send(ErrorMessage{Type: "error", Code: errorCode(err)})
		}
	case "action":
		var m ActionMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			c.Send(ErrorMessage{Type: "error", Code: "bad_message"})
			return
		}
		if err := s.router.Action(c.playerID, game.Action{Kind: game.ActionType(m.Kind), Amount: m.Amount}); err != nil {
			c.Send(ErrorMessage{Type: "error", Code: errorCode(err)})
		}
	default:
		c.Send(ErrorMessage{Type: "error", Code: "unknown_type"})
	}
}

func (s *Server) handleAuth(c *Client, raw []byte) {
	if c.playerID != "" {
		c.Send(ErrorMessage{Type: "error", Code: "already_authenticated"})
		return
	}
	var m AuthMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		c.Send(ErrorMessage{Type: "error", Code: "bad_message"})
		return
	}
	user, err := s.sessions.ResolveSession(context.Background(), m.SessionToken)
	if err != nil {
		c.Send(AuthResult{Type: "auth_result", Ok: false, Error: "invalid_session"})
		return
	}
	c.playerID = user.ID
	c.name = user.Name
	s.router.Register(user.ID, c)
	c.Send(AuthResult{Type: "auth_result", Ok: true, PlayerID: user.ID, Name: user.Name, Balance: user.BalanceCC})
	s.log.Info().Str("player_id", user.ID).Msg("client_authenticated")
}

func safeClose(ch chan []byte) {
	defer func() { _ = recover() }()
	close(ch)
}

var wireErrors = []error{
	hub.ErrAlreadyInRoom,
	hub.ErrNotInRoom,
	hub.ErrRoomNotFound,
	hub.ErrBuyInOutOfRange,
	store.ErrInsufficientBalance,
	game.ErrRoomFull,
	game.ErrAlreadySeated,
	room.ErrRoomBusy,
	room.ErrRoomClosed,
}

// errorCode maps routing failures onto wire codes. The sentinels spell
// their own codes; anything else is an internal fault the client only
// needs to know happened.
func errorCode(err error) string {
	for _, sentinel := range wireErrors {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal_error"
}
