// Package wsgatt emulates the bridge GATT service over a WebSocket so the
// bridge can be driven from a browser or a test harness without a
// Bluetooth adapter. Binary messages from the client are writes to the RX
// attribute; notifications are sent back as binary messages.
package wsgatt

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/dumacp/go-lorabridge/internal/protocol"
	"github.com/dumacp/go-lorabridge/internal/shortrange"
	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected = errors.New("no central connected")
	ErrNotStarted   = errors.New("websocket peripheral not started")
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Server implements shortrange.Peripheral. At most one client is connected
// at a time.
type Server struct {
	addr   string
	name   string
	events chan shortrange.Event
	mux    *http.ServeMux
	done   chan struct{}
	once   sync.Once

	lock        sync.Mutex
	srv         *http.Server
	listener    net.Listener
	advertising bool
	busy        bool
	conn        *websocket.Conn
}

func New(addr, name string) *Server {
	if name == "" {
		name = shortrange.DefaultLocalName
	}
	s := &Server{
		addr:   addr,
		name:   name,
		events: make(chan shortrange.Event, 16),
		mux:    http.NewServeMux(),
		done:   make(chan struct{}),
	}
	s.mux.HandleFunc("GET /gatt", s.connect)
	s.mux.HandleFunc("GET /info", s.info)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start listens on the configured address.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.lock.Lock()
	s.listener = ln
	s.srv = &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	srv := s.srv
	s.lock.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.LogError.Printf("websocket gatt server error: %s", err)
		}
	}()
	logs.LogInfo.Printf("websocket gatt listening on %s", ln.Addr())
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Advertise allows a client to connect.
func (s *Server) Advertise() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.advertising = true
	return nil
}

func (s *Server) Events() <-chan shortrange.Event { return s.events }

func (s *Server) Notify(data []byte) error {
	s.lock.Lock()
	conn := s.conn
	s.lock.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// Close stops the server. Handlers blocked on an unread event return.
func (s *Server) Close() error {
	s.once.Do(func() { close(s.done) })
	s.lock.Lock()
	srv, conn := s.srv, s.conn
	s.lock.Unlock()
	if conn != nil {
		conn.Close()
	}
	if srv != nil {
		return srv.Close()
	}
	return nil
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	switch {
	case s.busy:
		s.lock.Unlock()
		http.Error(w, "central already connected", http.StatusConflict)
		return
	case !s.advertising:
		s.lock.Unlock()
		http.Error(w, "not advertising", http.StatusServiceUnavailable)
		return
	}
	s.busy = true
	s.lock.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.LogWarn.Printf("websocket gatt upgrade: %s", err)
		s.lock.Lock()
		s.busy = false
		s.lock.Unlock()
		return
	}
	conn.SetReadLimit(protocol.MaxFrameSize * 2)

	s.lock.Lock()
	s.conn = conn
	s.advertising = false
	s.lock.Unlock()
	logs.LogInfo.Printf("websocket central connected: %s", r.RemoteAddr)
	s.emit(shortrange.Event{Kind: shortrange.EventConnected})

	defer func() {
		conn.Close()
		s.lock.Lock()
		s.conn = nil
		s.busy = false
		s.lock.Unlock()
		logs.LogInfo.Printf("websocket central disconnected: %s", r.RemoteAddr)
		s.emit(shortrange.Event{Kind: shortrange.EventDisconnected})
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			logs.LogWarn.Printf("websocket gatt: non-binary message ignored")
			continue
		}
		if !s.emit(shortrange.Event{Kind: shortrange.EventWrite, Attr: shortrange.RxUUID, Data: data}) {
			return
		}
	}
}

// emit hands ev to the bridge, giving up once the server is closed.
func (s *Server) emit(ev shortrange.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

type serviceInfo struct {
	Name    string `json:"name"`
	Service string `json:"service"`
	RX      string `json:"rx"`
	TX      string `json:"tx"`
	MaxSize int    `json:"maxSize"`
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(serviceInfo{
		Name:    s.name,
		Service: hex16(shortrange.ServiceUUID),
		RX:      hex16(shortrange.RxUUID),
		TX:      hex16(shortrange.TxUUID),
		MaxSize: protocol.MaxFrameSize,
	})
}

func hex16(v uint16) string {
	return fmt.Sprintf("0x%04X", v)
}
