package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"friendsync/internal/config"
)

// Client is a middleman between one websocket connection and the hub.
// The connection is push-only from the server's perspective: mutations
// arrive over the HTTP API, state flows back through this channel.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity string
	onClose  func()
}

// readPump discards inbound frames and watches for pongs and close. It
// also fires the onClose callback exactly once when the connection ends.
func (c *Client) readPump(wsCfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	}()
	c.conn.SetReadLimit(int64(wsCfg.MaxMessageSizeBytes))
	c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket 错误 (客户端: %s): %v", c.identity, err)
			}
			return
		}
		// 客户端不通过 WebSocket 发送指令，忽略入站帧。
	}
}

// writePump pumps payloads from the hub to the websocket connection.
func (c *Client) writePump(wsCfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(wsCfg.PingPeriodSeconds) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(wsCfg.WriteWaitSeconds) * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(wsCfg.WriteWaitSeconds) * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs 处理来自对等方的 websocket 请求并把连接注册到 hub。
// onClose 在连接结束时回调（用于释放会话引用）。
func ServeWs(hub *Hub, identity string, onClose func(), w http.ResponseWriter, r *http.Request, wsCfg config.WebSocketConfig) (*Client, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("ServeWs - Upgrade失败:", err)
		return nil, err
	}
	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		identity: identity,
		onClose:  onClose,
	}
	client.hub.register <- client

	go client.writePump(wsCfg)
	go client.readPump(wsCfg)

	log.Printf("客户端已连接: %s", identity)
	return client, nil
}
