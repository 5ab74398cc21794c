package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"landslidewatch/internal/logger"
	"landslidewatch/internal/service/ai"
	"landslidewatch/internal/service/pipeline"

	"github.com/gorilla/websocket"
)

const (
	writeWait       = 5 * time.Second
	broadcastBuffer = 4
)

// FrameMessage is what viewers receive for every rendered tick.
type FrameMessage struct {
	Type       string    `json:"type"`
	Image      string    `json:"image,omitempty"` // base64 JPEG
	Status     string    `json:"status"`
	Vehicles   int       `json:"vehicles"`
	Overlay    int       `json:"overlay"`
	CapturedAt time.Time `json:"captured_at"`
}

type drawFunc func(img []byte, records []pipeline.DetectionRecord, maxWidth, maxHeight int) ([]byte, error)

// HubService fans rendered frames out to connected viewers. It implements
// pipeline.Display.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.Mutex // guards clients
	count      atomic.Int32
	logger     *logger.Logger

	maxWidth  int
	maxHeight int
	draw      drawFunc
}

// NewHubService returns a hub that scales frames to fit maxWidth x maxHeight.
func NewHubService(maxWidth, maxHeight int, logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
		maxWidth:   maxWidth,
		maxHeight:  maxHeight,
		draw:       ai.DrawOverlay,
	}
}

// Run serves register, unregister and broadcast requests until ctx is done,
// then closes every viewer connection.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.count.Store(int32(total))
			h.mutex.Unlock()
			h.logger.Info("Viewer connected. Total: %d", total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.count.Store(int32(total))
			h.mutex.Unlock()
			h.logger.Info("Viewer disconnected. Total: %d", total)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Error("Error sending message: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.count.Store(int32(len(h.clients)))
			h.mutex.Unlock()
		}
	}
}

func (h *HubService) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		client.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(writeWait))
		client.Close()
		delete(h.clients, client)
	}
	h.count.Store(0)
}

// Register adds a viewer. After Run has returned the connection is closed.
func (h *HubService) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.Close()
	}
}

// Broadcast queues message for every viewer. When viewers fall behind the
// message is dropped so the pipeline never blocks on the network.
func (h *HubService) Broadcast(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		h.logger.Warning("Viewer queue full, dropping frame")
		return false
	}
}

// GetClientCount never waits on a broadcast in progress.
func (h *HubService) GetClientCount() int {
	return int(h.count.Load())
}

// Render draws the overlay onto frame and broadcasts it with the status line.
// Nothing is encoded while no viewer is connected.
func (h *HubService) Render(frame pipeline.Frame, overlay []pipeline.DetectionRecord, status string, vehicleCount int) {
	if h.GetClientCount() == 0 {
		return
	}

	msg := FrameMessage{
		Type:       "frame",
		Status:     status,
		Vehicles:   vehicleCount,
		Overlay:    len(overlay),
		CapturedAt: frame.CapturedAt,
	}

	img, err := h.draw(frame.Image, overlay, h.maxWidth, h.maxHeight)
	if err != nil {
		h.logger.Error("Failed to render frame: %v", err)
	} else {
		msg.Image = base64.StdEncoding.EncodeToString(img)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode frame message: %v", err)
		return
	}
	h.Broadcast(payload)
}
