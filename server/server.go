package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audioportal/config"
	"audioportal/logger"

	"github.com/gorilla/mux"
)

const (
	// uploadReadTimeout bounds how long a client may take to send a request.
	uploadReadTimeout = 5 * time.Minute
	shutdownTimeout   = 10 * time.Second
)

// corsMiddleware 添加 CORS 头
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// registerRoutes mounts the API on r. It is called for the root router and
// for the /api prefix, which the web client uses.
func registerRoutes(r *mux.Router, h *APIHandler, prefix string) {
	r.HandleFunc("/upload", h.UploadAudioHandler).Methods(http.MethodPost)
	r.HandleFunc("/metadata/{id}", h.SaveMetadataHandler).Methods(http.MethodPost)
	r.HandleFunc("/audios", h.ListAudiosHandler).Methods(http.MethodGet)
	r.HandleFunc("/audio/{id}", h.GetAudioHandler).Methods(http.MethodGet)
	r.HandleFunc("/audio/{id}/transcription", h.GetTranscriptionHandler).Methods(http.MethodGet)
	r.HandleFunc("/audio/{id}/transcription/retry", h.RetryTranscriptionHandler).Methods(http.MethodPost)
	r.HandleFunc("/ws/uploads", h.UploadEventsHandler).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(NewStaticHandler(h.blobs, prefix+"/static/")).Methods(http.MethodGet, http.MethodHead)
}

// NewRouter builds the complete HTTP surface: the API at / and /api, and the
// client UI from cfg.WebAppDir for everything else.
func NewRouter(cfg *config.Config, h *APIHandler) http.Handler {
	router := mux.NewRouter()

	registerRoutes(router.PathPrefix("/api").Subrouter(), h, "/api")
	registerRoutes(router, h, "")

	// Frontend UI serving
	uiFileServer := http.FileServer(http.Dir(cfg.WebAppDir))
	router.PathPrefix("/").Handler(uiFileServer)

	// Preflight requests are answered before route matching.
	return corsMiddleware(router)
}

// Start serves handler on cfg.ServerAddr until SIGINT or SIGTERM.
func Start(cfg *config.Config, handler http.Handler) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Serve(ctx, cfg, handler)
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, cfg *config.Config, handler http.Handler) error {
	// The write timeout covers reading the upload and waiting on transcription.
	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       uploadReadTimeout,
		WriteTimeout:      uploadReadTimeout + cfg.TranscriptionTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.ServerAddr))
		logger.Info("Upload audio via POST /api/upload, list via GET /api/audios")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
