package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/shelfscan/internal/collection"
	"github.com/mrlokans/shelfscan/internal/entities"
)

const defaultHeartbeat = 30 * time.Second

// ChangeEvent is the payload of one server-sent event.
type ChangeEvent struct {
	Kind  collection.ChangeKind `json:"kind"`
	Book  *entities.Book        `json:"book,omitempty"`
	Error string                `json:"error,omitempty"`
}

func newChangeEvent(change collection.Change) ChangeEvent {
	event := ChangeEvent{Kind: change.Kind}
	switch change.Kind {
	case collection.ChangeUpserted, collection.ChangeRemoved, collection.ChangeRestored:
		book := change.Book
		event.Book = &book
	}
	if change.Err != nil {
		event.Error = change.Err.Error()
	}
	return event
}

type EventsController struct {
	service   EventService
	logger    *slog.Logger
	heartbeat time.Duration
}

func NewEventsController(service EventService, logger *slog.Logger) *EventsController {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsController{service: service, logger: logger, heartbeat: defaultHeartbeat}
}

// Stream pushes collection changes as server-sent events until the client
// goes away or the collection shuts down.
// GET /events
func (ec *EventsController) Stream(c *gin.Context) {
	changes, stop := ec.service.Subscribe()
	defer stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent("connected", gin.H{"message": "subscribed to collection changes"})
	c.Writer.Flush()

	heartbeat := time.NewTicker(ec.heartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case change, ok := <-changes:
			if !ok {
				c.SSEvent("closed", gin.H{"message": "collection stopped"})
				c.Writer.Flush()
				return
			}
			c.SSEvent(string(change.Kind), newChangeEvent(change))
			c.Writer.Flush()
		case <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"time": time.Now().UTC()})
			c.Writer.Flush()
		case <-ctx.Done():
			ec.logger.Debug("event stream client disconnected")
			return
		}
	}
}
