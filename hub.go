package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const hubWriteWait = 10 * time.Second

// huntHub fans hunt events (spawn created/claimed/expired, node collected)
// out to connected websocket clients.
type huntHub struct {
	mu          sync.Mutex
	subscribers map[uint64]*hubSubscriber
	nextID      atomic.Uint64
}

type hubSubscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type huntEventMessage struct {
	Type       string      `json:"type"`
	Event      string      `json:"event"`
	Payload    interface{} `json:"payload,omitempty"`
	ServerTime int64       `json:"serverTime"`
}

func newHuntHub() *huntHub {
	return &huntHub{subscribers: make(map[uint64]*hubSubscriber)}
}

func (h *huntHub) Subscribe(conn *websocket.Conn) uint64 {
	id := h.nextID.Add(1)
	h.mu.Lock()
	h.subscribers[id] = &hubSubscriber{conn: conn}
	h.mu.Unlock()
	return id
}

func (h *huntHub) Unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	if ok {
		sub.conn.Close()
	}
}

// Broadcast sends one event to every subscriber, dropping connections whose
// writes fail.
func (h *huntHub) Broadcast(event string, payload interface{}) {
	msg := huntEventMessage{
		Type:       "hunt_event",
		Event:      event,
		Payload:    payload,
		ServerTime: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("failed to marshal hunt event %s: %v", event, err)
		return
	}

	h.mu.Lock()
	subs := make(map[uint64]*hubSubscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	h.mu.Unlock()

	for id, sub := range subs {
		sub.mu.Lock()
		sub.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
		err := sub.conn.WriteMessage(websocket.TextMessage, data)
		sub.mu.Unlock()
		if err != nil {
			log.Printf("dropping hunt stream subscriber %d: %v", id, err)
			h.Unsubscribe(id)
		}
	}
}

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func streamHandler(hub *huntHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := streamUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("hunt stream upgrade failed:", err)
			return
		}

		id := hub.Subscribe(conn)

		// The feed is one-way; the read loop only notices disconnects.
		go func() {
			defer hub.Unsubscribe(id)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
