// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/northbound/cil/internal/logger"
)

var logStreamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleLogStream serves GET /logs/stream, grounded on the teacher's
// WebSocketManager.HandleWebSocket: upgrade, subscribe to the process-wide
// log broadcaster, forward every line until the client disconnects, and
// keep the connection alive with periodic pings.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	conn, err := logStreamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Printf("logs/stream: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch, unsub := logger.GetDefault().Subscribe()
	if ch == nil {
		conn.WriteMessage(websocket.TextMessage, []byte("log stream unavailable"))
		return
	}
	defer logger.GetDefault().Unsubscribe(unsub)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case line, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}
