package server

import (
	"encoding/json"
	"net/http"

	"audioportal/core/events"
	"audioportal/core/portal"
	"audioportal/logger"
	"audioportal/model"
	"audioportal/storage"

	"github.com/gorilla/websocket"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	svc      *portal.Service
	blobs    storage.BlobStore
	hub      *events.Hub
	upgrader websocket.Upgrader
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(svc *portal.Service, blobs storage.BlobStore, hub *events.Hub) *APIHandler {
	return &APIHandler{
		svc:   svc,
		blobs: blobs,
		hub:   hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Message string             `json:"message"`
	Error   string             `json:"error"`
	Audio   *model.AudioRecord `json:"audio,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", logger.ErrorField(err))
	}
}
