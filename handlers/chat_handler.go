package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/silvioiatech/UmbraSIL/agent"
)

// WebSocket 升级器
var upgrader = websocket.Upgrader{
	ReadBufferSize:  32768, // 32KB 读缓冲
	WriteBufferSize: 32768, // 32KB 写缓冲
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// inboundFrame 客户端发来的帧
type inboundFrame struct {
	Type   string `json:"type"` // message / action
	Text   string `json:"text,omitempty"`
	Action string `json:"action,omitempty"`
}

// outboundFrame 推给客户端的帧
type outboundFrame struct {
	Type    string   `json:"type"` // reply
	Text    string   `json:"text"`
	Actions []string `json:"actions,omitempty"`
}

// wsClient 单个WebSocket连接，写操作串行化
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// ChatHandler 聊天通道：维护用户到WebSocket连接的映射，
// 并作为编排器的出站通道把回复推给在线用户。
type ChatHandler struct {
	mu      sync.RWMutex
	clients map[int64]*wsClient

	orchestrator *agent.Orchestrator
}

// NewChatHandler 创建聊天处理器
func NewChatHandler() *ChatHandler {
	return &ChatHandler{
		clients: make(map[int64]*wsClient),
	}
}

// SetOrchestrator 注入编排器（构造时存在循环依赖，延迟注入）
func (h *ChatHandler) SetOrchestrator(o *agent.Orchestrator) {
	h.orchestrator = o
}

// Send 把回复推给指定用户（实现编排器的出站接口）
func (h *ChatHandler) Send(userID int64, text string, actions []agent.Action) error {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()

	if !ok {
		log.Printf("⚠️ 用户 %d 不在线，回复丢弃", userID)
		return nil
	}

	frame := outboundFrame{Type: "reply", Text: text}
	for _, a := range actions {
		frame.Actions = append(frame.Actions, string(a))
	}
	return client.writeJSON(frame)
}

// GinHandleChat 处理聊天WebSocket连接
func (h *ChatHandler) GinHandleChat(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "无效的用户ID"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("WebSocket 升级失败:", err)
		return
	}

	client := &wsClient{conn: ws}
	h.mu.Lock()
	// 同一用户重复连接时顶掉旧连接
	if old, ok := h.clients[userID]; ok {
		old.conn.Close()
	}
	h.clients[userID] = client
	h.mu.Unlock()

	log.Printf("✓ 用户 %d 已连接", userID)
	defer func() {
		h.mu.Lock()
		if h.clients[userID] == client {
			delete(h.clients, userID)
		}
		h.mu.Unlock()
		ws.Close()
		log.Printf("用户 %d 已断开", userID)
	}()

	for {
		var frame inboundFrame
		if err := ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️ 用户 %d 连接异常关闭: %v", userID, err)
			}
			return
		}

		switch frame.Type {
		case "message":
			// 每条消息独立处理，同一用户由编排器内部串行化
			go h.orchestrator.HandleMessage(context.Background(), userID, frame.Text)
		case "action":
			go h.orchestrator.HandleAction(context.Background(), userID, agent.Action(frame.Action))
		default:
			log.Printf("⚠️ 用户 %d 发来未知帧类型: %s", userID, frame.Type)
		}
	}
}
