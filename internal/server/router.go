package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roastwire/roastwire/internal/domain"
	"github.com/roastwire/roastwire/internal/protocol"
)

// upgrader accepts any origin. Channels carry no browser credentials and
// access control is the deployment's concern, not the protocol's.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler builds the HTTP surface: live channels, discovery, health, and
// metrics when no dedicated metrics listener is configured.
func (h *Hub) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", h.handleHealthz)
	router.GET("/machines", h.handleMachines)
	router.GET("/live/:machine", h.handleLive)
	if h.cfg.MetricsAddr == "" {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	return router
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (h *Hub) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "machines": len(h.runtimes())})
}

// machineInfo is one entry of the discovery listing.
type machineInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DriverName   string `json:"driver_name"`
	DriverState  string `json:"driver_state"`
	SessionState string `json:"session_state"`
	Connections  int    `json:"connections"`
	HistoryLen   int    `json:"history_len"`
}

func (h *Hub) handleMachines(c *gin.Context) {
	infos := make([]machineInfo, 0)
	for _, rt := range h.runtimes() {
		infos = append(infos, machineInfo{
			ID:           rt.id,
			Name:         rt.name,
			DriverName:   rt.driver.Name(),
			DriverState:  string(rt.driver.State()),
			SessionState: string(rt.session.State()),
			Connections:  rt.connCount(),
			HistoryLen:   rt.history.Len(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"machines": infos})
}

// handleLive upgrades to a websocket live channel. An unknown machine
// still gets an upgraded channel so the failure arrives as a protocol
// frame the client can interpret, then the channel closes.
func (h *Hub) handleLive(c *gin.Context) {
	machineID := c.Param("machine")
	rt := h.runtime(machineID)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	if rt == nil {
		frame := protocol.NewError(domain.CodeMachineNotFound, "no machine "+machineID)
		if data, err := protocol.Encode(frame); err == nil {
			_ = ws.WriteMessage(websocket.TextMessage, data)
		}
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "unknown machine"))
		_ = ws.Close()
		return
	}

	rt.attach(ws)
}
