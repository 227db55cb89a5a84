package websocket

import (
	"encoding/json"
	"log"

	"friendsync/internal/session"
)

// Frame is the JSON envelope pushed to a connected client: either a full
// published-state snapshot or a notification event.
type Frame struct {
	Type         string                  `json:"type"` // "state" 或 "notification"
	State        *session.PublishedState `json:"state,omitempty"`
	Notification json.RawMessage         `json:"notification,omitempty"`
}

// MarshalStateFrame 将发布状态快照包装为推送帧。
func MarshalStateFrame(state session.PublishedState) ([]byte, error) {
	return json.Marshal(Frame{Type: "state", State: &state})
}

// MarshalNotificationFrame 将通知事件包装为推送帧。
func MarshalNotificationFrame(payload []byte) ([]byte, error) {
	return json.Marshal(Frame{Type: "notification", Notification: payload})
}

type envelope struct {
	identity string
	payload  []byte
}

// Hub maintains the set of active clients keyed by identity and delivers
// per-identity payloads. Assumes one connection per identity; a reconnect
// replaces the previous connection.
type Hub struct {
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	direct     chan envelope
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan envelope, 256),
	}
}

// DeliverDirect sends a payload to the identity's connected client, if
// any. Non-blocking so a slow hub never stalls the caller.
func (h *Hub) DeliverDirect(identity string, payload []byte) {
	select {
	case h.direct <- envelope{identity: identity, payload: payload}:
	default:
		log.Printf("警告: Hub direct channel is full. Dropping payload for %s", identity)
	}
}

// Run starts the hub and listens for messages on its channels.
func (h *Hub) Run() {
	log.Println("WebSocket Hub Run loop started.")
	for {
		select {
		case client := <-h.register:
			if existing, ok := h.clients[client.identity]; ok {
				// 同一身份重复连接：关闭旧连接，注册新连接。
				log.Printf("警告: 用户 %s 已有连接，关闭旧连接并注册新连接。", client.identity)
				close(existing.send)
			}
			h.clients[client.identity] = client
			log.Printf("客户端已注册: %s", client.identity)

		case client := <-h.unregister:
			// 只有当仍然存储着这个连接时才移除，避免误关一个刚替换上来的新连接。
			if stored, ok := h.clients[client.identity]; ok && stored == client {
				delete(h.clients, client.identity)
				close(client.send)
				log.Printf("客户端已注销: %s", client.identity)
			}

		case env := <-h.direct:
			client, ok := h.clients[env.identity]
			if !ok {
				continue // 用户当前没有连接
			}
			select {
			case client.send <- env.payload:
			default:
				// 发送缓冲已满，认为客户端已断开或过慢。
				log.Printf("警告: %s 的发送通道已满，移除客户端。", env.identity)
				close(client.send)
				delete(h.clients, env.identity)
			}
		}
	}
}
