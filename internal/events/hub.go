package events

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 2 * time.Second

// ErrUnsubscribed is returned when a subscriber has already been dropped.
var ErrUnsubscribed = errors.New("subscriber no longer connected")

type Transport string

const (
	TransportTCP Transport = "tcp"
	TransportWS  Transport = "ws"
)

// Subscriber is one connected feed client. An empty language follows every
// catalog.
type Subscriber struct {
	transport Transport
	language  string
	write     func(line []byte) error
	close     func() error
}

func (s *Subscriber) follows(language string) bool {
	return s.language == "" || s.language == language
}

func (s *Subscriber) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write(append(b, '\n'))
}

// Hub fans catalog events out to TCP and websocket subscribers. Every write
// to a subscriber happens under mu, so no connection ever has two writers.
type Hub struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

type Stats struct {
	TCPClients int            `json:"tcp_clients"`
	WSClients  int            `json:"ws_clients"`
	Languages  map[string]int `json:"languages,omitempty"` // filtered subscribers per catalog
}

type controlMessage struct {
	Type        string    `json:"type"`
	Transport   Transport `json:"transport,omitempty"`
	Language    string    `json:"language,omitempty"`
	Subscribers int       `json:"subscribers,omitempty"`
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

// SubscribeTCP registers conn and sends it the welcome line.
func (h *Hub) SubscribeTCP(conn net.Conn, language string) (*Subscriber, error) {
	return h.subscribe(&Subscriber{
		transport: TransportTCP,
		language:  language,
		write: func(line []byte) error {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_, err := conn.Write(line)
			return err
		},
		close: conn.Close,
	})
}

// SubscribeWS registers ws and sends it the welcome message.
func (h *Hub) SubscribeWS(ws *websocket.Conn, language string) (*Subscriber, error) {
	return h.subscribe(&Subscriber{
		transport: TransportWS,
		language:  language,
		write: func(line []byte) error {
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			return ws.WriteMessage(websocket.TextMessage, line)
		},
		close: ws.Close,
	})
}

func (h *Hub) subscribe(s *Subscriber) (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	welcome := controlMessage{
		Type:        "welcome",
		Transport:   s.transport,
		Language:    s.language,
		Subscribers: len(h.subs) + 1,
	}
	if err := s.send(welcome); err != nil {
		_ = s.close()
		return nil, err
	}
	h.subs[s] = struct{}{}
	return s, nil
}

// Follow switches s to events of language ("" for all) and acknowledges the
// change on the connection.
func (h *Hub) Follow(s *Subscriber, language string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[s]; !ok {
		return ErrUnsubscribed
	}
	s.language = language
	if err := s.send(controlMessage{Type: "subscribed", Language: language}); err != nil {
		delete(h.subs, s)
		_ = s.close()
		return err
	}
	return nil
}

func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	_ = s.close()
}

// Publish sends ev as one JSON line to every subscriber following its
// language. Subscribers whose write fails are dropped.
func (h *Hub) Publish(ev CatalogEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	line := append(b, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if !s.follows(ev.Language) {
			continue
		}
		if err := s.write(line); err != nil {
			delete(h.subs, s)
			_ = s.close()
		}
	}
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	var st Stats
	for s := range h.subs {
		switch s.transport {
		case TransportTCP:
			st.TCPClients++
		case TransportWS:
			st.WSClients++
		}
		if s.language != "" {
			if st.Languages == nil {
				st.Languages = make(map[string]int)
			}
			st.Languages[s.language]++
		}
	}
	return st
}
