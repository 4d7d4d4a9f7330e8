package server

import (
	"net/http"

	"audioportal/core/events"
	"audioportal/logger"
)

// UploadEventsHandler upgrades GET /ws/uploads and streams flow events to the client.
func (h *APIHandler) UploadEventsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", logger.ErrorField(err))
		return
	}

	client := &events.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, events.SendBufferSize),
	}
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	logger.Info("WebSocket 连接建立", logger.String("remoteAddr", r.RemoteAddr))
}
