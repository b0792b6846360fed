package ws

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mascotdog/ChatServer/internal/chat"
)

// Server upgrades HTTP requests and hands the resulting connections to the
// chat service. It tracks live clients so shutdown can close them.
type Server struct {
	svc        *chat.Service
	upgrader   websocket.Upgrader
	sendBuffer int
	maxMsgSize int64

	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewServer(svc *chat.Service, sendBuffer int, maxMsgSize int64) *Server {
	return &Server{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sendBuffer: sendBuffer,
		maxMsgSize: maxMsgSize,
		clients:    make(map[*Client]struct{}),
	}
}

// ServeWS handles a WebSocket upgrade request and runs the connection's
// read/write pumps until it closes.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	conn.SetReadLimit(s.maxMsgSize)

	client := newClient(conn, s.sendBuffer)
	s.track(client)
	log.Printf("ws: client connected from %s", client.addr)

	go client.writePump()
	go func() {
		client.readPump(s.svc)
		s.untrack(client)
		log.Printf("ws: client disconnected from %s", client.addr)
	}()
}

// Close terminates every live connection. The read pumps observe the close
// and run the usual disconnect reconciliation.
func (s *Server) Close() {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (s *Server) track(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) untrack(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}
