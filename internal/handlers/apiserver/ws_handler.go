package apiserver

import (
	"context"
	"log"
	"net/http"

	"friendsync/internal/config"
	"friendsync/internal/middleware"
	"friendsync/internal/session"
	"friendsync/internal/websocket"
)

// WsHandler upgrades authenticated connections and binds them to a
// per-identity sync session. Attaching starts the listeners on first
// connect; detaching on close tears them down with the last connection.
type WsHandler struct {
	hub      *websocket.Hub
	sessions *session.Manager
	wsCfg    config.WebSocketConfig
}

// NewWsHandler creates a new WsHandler.
func NewWsHandler(hub *websocket.Hub, sessions *session.Manager, wsCfg config.WebSocketConfig) *WsHandler {
	return &WsHandler{hub: hub, sessions: sessions, wsCfg: wsCfg}
}

// ServeHTTP handles GET /ws
func (h *WsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户身份", http.StatusUnauthorized)
		return
	}

	// 会话生命周期由引用计数管理，不跟随这次握手请求的 context。
	sess := h.sessions.Attach(context.Background(), identity)

	_, err := websocket.ServeWs(h.hub, identity, func() {
		h.sessions.Detach(identity)
	}, w, r, h.wsCfg)
	if err != nil {
		// 升级失败时回收刚刚增加的会话引用。
		h.sessions.Detach(identity)
		log.Printf("WebSocket 升级失败 (用户 %s): %v", identity, err)
		return
	}

	// 连接建立后立即推送一次当前全量状态。
	if payload, err := websocket.MarshalStateFrame(sess.Snapshot()); err == nil {
		h.hub.DeliverDirect(identity, payload)
	} else {
		log.Printf("序列化初始状态失败 (用户 %s): %v", identity, err)
	}
}
