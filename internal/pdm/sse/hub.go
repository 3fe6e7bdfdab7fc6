package sse

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event 一条 SSE 事件
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client 已连接的订阅者，TreeID 为空表示订阅全部树
type Client struct {
	ID     string
	UserID string
	TreeID string
	Events chan Event
}

// Hub 管理订阅者
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Register 注册订阅者
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	zap.L().Debug("sse client registered",
		zap.String("client_id", client.ID),
		zap.String("tree_id", client.TreeID),
		zap.Int("total", len(h.clients)))
}

// Unregister 注销订阅者并关闭其通道
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		zap.L().Debug("sse client unregistered", zap.String("client_id", clientID), zap.Int("total", len(h.clients)))
	}
}

// ClientCount 当前订阅者数量
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast 缓冲区满的订阅者直接跳过
func (h *Hub) broadcast(treeID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.TreeID != "" && client.TreeID != treeID {
			continue
		}
		select {
		case client.Events <- event:
		default:
			zap.L().Warn("sse client buffer full, skipping event", zap.String("client_id", client.ID))
		}
	}
}

// TreeChange tree:changed 事件内容
type TreeChange struct {
	TreeID      string `json:"tree_id"`
	ChangeType  string `json:"change_type"`
	StructureID string `json:"structure_id,omitempty"`
	ChangeLogID string `json:"change_log_id,omitempty"`
}

// PublishTreeChange 广播树结构变更
func (h *Hub) PublishTreeChange(change TreeChange) {
	data, err := json.Marshal(change)
	if err != nil {
		return
	}
	h.broadcast(change.TreeID, Event{EventType: "tree:changed", Data: string(data)})
}
