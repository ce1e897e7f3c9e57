package dashboard

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mschirtzinger/tasktree/internal/ordering"
)

// StatsData counts the events seen since the handler was created.
type StatsData struct {
	Created    int            `json:"created"`
	Deleted    int            `json:"deleted"`
	Indented   int            `json:"indented"`
	Unindented int            `json:"unindented"`
	ByList     map[string]int `json:"by_list"`
}

// Handler turns engine events into dashboard messages. Register it with
// ordering.Engine.Observe.
type Handler struct {
	server *Server
	logger zerolog.Logger

	mu    sync.Mutex
	stats StatsData
}

var _ ordering.Observer = (*Handler)(nil)

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger zerolog.Logger) *Handler {
	return &Handler{
		server: server,
		logger: logger.With().Str("mod", "dashboard").Logger(),
		stats: StatsData{
			ByList: make(map[string]int),
		},
	}
}

// OnEvent broadcasts ev followed by the updated stats.
func (h *Handler) OnEvent(ev ordering.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal event")
		return
	}

	h.mu.Lock()
	switch ev.Kind {
	case ordering.EventTaskCreated:
		h.stats.Created++
	case ordering.EventTaskDeleted:
		h.stats.Deleted += len(ev.TaskIDs)
	case ordering.EventTaskIndented:
		h.stats.Indented++
	case ordering.EventTaskUnindented:
		h.stats.Unindented++
	}
	h.stats.ByList[ev.ListID]++
	h.mu.Unlock()

	h.server.Broadcast(Message{
		Type:      MessageTypeListEvent,
		ListID:    ev.ListID,
		Timestamp: ev.At,
		Data:      data,
	})
	h.broadcastStats()
}

func (h *Handler) broadcastStats() {
	stats := h.GetStats()
	data, err := json.Marshal(stats)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal stats")
		return
	}
	h.server.Broadcast(Message{Type: MessageTypeStats, Data: data})
}

// GetStats returns a copy of the current statistics.
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.stats
	s.ByList = make(map[string]int, len(h.stats.ByList))
	for k, v := range h.stats.ByList {
		s.ByList[k] = v
	}
	return s
}
