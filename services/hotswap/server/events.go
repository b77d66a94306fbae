// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/hotswap/services/hotswap/match"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// eventBuffer is the number of summaries queued per subscriber. A
	// subscriber that falls further behind misses revisions.
	eventBuffer = 16

	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

// EventHub fans committed revisions out to subscribers of a context.
//
// Thread Safety: Safe for concurrent use.
type EventHub struct {
	mu     sync.Mutex
	subs   map[string]map[chan match.Summary]struct{}
	closed bool
}

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[string]map[chan match.Summary]struct{})}
}

// Subscribe returns a channel receiving every summary published for
// contextID, and a function that ends the subscription. The channel is
// closed when the subscription ends or the hub is closed.
func (h *EventHub) Subscribe(contextID string) (<-chan match.Summary, func()) {
	ch := make(chan match.Summary, eventBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if h.subs[contextID] == nil {
		h.subs[contextID] = make(map[chan match.Summary]struct{})
	}
	h.subs[contextID][ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[contextID][ch]; ok {
			delete(h.subs[contextID], ch)
			close(ch)
		}
	}
}

// Publish delivers s to the subscribers of its context without blocking.
// It returns the number of subscribers that received it.
func (h *EventHub) Publish(s match.Summary) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for ch := range h.subs[s.ContextID] {
		select {
		case ch <- s:
			delivered++
		default:
		}
	}
	return delivered
}

// Close ends every subscription.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, subs := range h.subs {
		for ch := range subs {
			close(ch)
		}
		delete(h.subs, id)
	}
}

// HandleEvents handles GET /v1/hotswap/contexts/:id/events.
//
// Description:
//
//	Upgrades to a WebSocket and pushes a match.Summary for every revision
//	committed to the context after the connection was accepted. Messages
//	from the client are read and discarded; the stream ends when the client
//	disconnects or the service closes.
//
// Response:
//
//	101 Switching Protocols: summary stream
//	404 Not Found: Unknown context
func (h *Handlers) HandleEvents(c *gin.Context) {
	logger := h.requestLogger(c, "HandleEvents")
	contextID := c.Param("id")

	// Subscribe before the upgrade so no commit after the handshake is missed.
	events, cancel, err := h.svc.Subscribe(contextID)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	defer cancel()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("Failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()
	logger.Info("Event stream opened", "context_id", contextID)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			logger.Info("Event stream closed by client", "context_id", contextID)
			return
		case s, ok := <-events:
			if !ok {
				closeStream(ws, logger)
				return
			}
			if err := sendJSON(ws, s); err != nil {
				logger.Warn("Failed to write event", "error", err)
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func sendJSON(ws *websocket.Conn, v any) error {
	if err := ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return ws.WriteJSON(v)
}

func closeStream(ws *websocket.Conn, logger *slog.Logger) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "service closed")
	if err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout)); err != nil {
		logger.Debug("Failed to send close frame", "error", err)
	}
}
