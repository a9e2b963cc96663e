package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Scan progress is not sensitive enough to warrant origin pinning; the
	// API token still gates everything mutating.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ProgressEvent is one websocket frame pushed to subscribers of a scan.
type ProgressEvent struct {
	Type      string  `json:"type"` // progress, result
	ScanID    string  `json:"scan_id"`
	Step      string  `json:"step,omitempty"`
	Percent   int     `json:"percent,omitempty"`
	Verdict   string  `json:"verdict,omitempty"`
	FakeScore float64 `json:"fake_score,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

type progressClient struct {
	conn   *websocket.Conn
	sendCh chan *ProgressEvent
}

// ProgressHub fans scan pipeline events out to websocket subscribers.
// It implements the worker's ProgressBroadcaster.
type ProgressHub struct {
	mu      sync.RWMutex
	clients map[string]map[*progressClient]struct{} // scanID -> clients
	logger  *logrus.Logger
}

func NewProgressHub(logger *logrus.Logger) *ProgressHub {
	return &ProgressHub{
		clients: make(map[string]map[*progressClient]struct{}),
		logger:  logger,
	}
}

// Subscribe upgrades the request and streams events for one scan until the
// client disconnects.
func (h *ProgressHub) Subscribe(c *gin.Context) {
	scanID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	client := &progressClient{
		conn:   conn,
		sendCh: make(chan *ProgressEvent, 16),
	}

	h.mu.Lock()
	if h.clients[scanID] == nil {
		h.clients[scanID] = make(map[*progressClient]struct{})
	}
	h.clients[scanID][client] = struct{}{}
	h.mu.Unlock()

	h.logger.WithField("scan_id", scanID).Debug("Websocket subscriber connected")

	go h.writePump(scanID, client)
	h.readPump(scanID, client)
}

func (h *ProgressHub) writePump(scanID string, client *progressClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-client.sendCh:
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteJSON(event); err != nil {
				h.unsubscribe(scanID, client)
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unsubscribe(scanID, client)
				return
			}
		}
	}
}

// readPump drains inbound frames so pings/pongs and close frames are
// processed; clients are not expected to send data.
func (h *ProgressHub) readPump(scanID string, client *progressClient) {
	defer h.unsubscribe(scanID, client)

	client.conn.SetReadLimit(512)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *ProgressHub) unsubscribe(scanID string, client *progressClient) {
	h.mu.Lock()
	if set, ok := h.clients[scanID]; ok {
		if _, present := set[client]; present {
			delete(set, client)
			close(client.sendCh)
			if len(set) == 0 {
				delete(h.clients, scanID)
			}
		}
	}
	h.mu.Unlock()

	client.conn.Close()
}

func (h *ProgressHub) broadcast(scanID string, event *ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[scanID] {
		select {
		case client.sendCh <- event:
		default:
			// Slow consumer, drop the frame rather than stall the pipeline.
		}
	}
}

// BroadcastProgress pushes a pipeline stage update to subscribers.
func (h *ProgressHub) BroadcastProgress(scanID, step string, percent int) {
	h.broadcast(scanID, &ProgressEvent{
		Type:      "progress",
		ScanID:    scanID,
		Step:      step,
		Percent:   percent,
		Timestamp: time.Now().Unix(),
	})
}

// BroadcastResult pushes the final verdict to subscribers.
func (h *ProgressHub) BroadcastResult(scanID string, verdict string, score float64) {
	h.broadcast(scanID, &ProgressEvent{
		Type:      "result",
		ScanID:    scanID,
		Verdict:   verdict,
		FakeScore: score,
		Timestamp: time.Now().Unix(),
	})
}
