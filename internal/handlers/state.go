package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-client/internal/consent"
	"chat-client/internal/models"
)

// EngineView is the read-only engine surface the debug endpoints expose.
type EngineView interface {
	Contacts() consent.Partition
	PendingRequests() []models.ChatRequest
	UnreadCounts() map[int]int
	LocalUser() models.User
	Selected() int
}

// StateHandler serves local introspection endpoints. They exist for
// operators and tests; the engine itself never depends on them.
type StateHandler struct {
	engine EngineView
}

// NewStateHandler builds a StateHandler.
func NewStateHandler(engine EngineView) *StateHandler {
	return &StateHandler{engine: engine}
}

// Register wires the debug routes onto the router.
func (h *StateHandler) Register(router *gin.Engine) {
	router.GET("/healthz", h.Health)
	router.GET("/state/contacts", h.Contacts)
	router.GET("/state/requests", h.Requests)
	router.GET("/state/unread", h.Unread)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Health reports liveness and the session identity.
func (h *StateHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"user":   h.engine.LocalUser(),
	})
}

// Contacts returns the current consent partition of the directory.
func (h *StateHandler) Contacts(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Contacts())
}

// Requests returns the actionable incoming chat requests.
func (h *StateHandler) Requests(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pending": h.engine.PendingRequests()})
}

// Unread returns the non-zero unread badges and the open conversation.
func (h *StateHandler) Unread(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"selected": h.engine.Selected(),
		"unread":   h.engine.UnreadCounts(),
	})
}
