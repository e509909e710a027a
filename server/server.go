// Package server hosts the relay hub: the stand-in for the browser's
// origin-scoped broadcast channel when tabs run as separate processes.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SyncFM/config"
	"SyncFM/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Tabs of one profile all run on the local machine.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Start runs the relay hub until SIGINT/SIGTERM.
func Start(cfg *config.Config) error {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	router := mux.NewRouter()
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWS(hub, w, r)
	})
	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"clients": hub.ClientCount(),
		})
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:         cfg.HubAddr,
		Handler:      router,
		ReadTimeout:  0, // websockets manage their own deadlines
		WriteTimeout: 0,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay hub listening", logger.String("addr", cfg.HubAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down relay hub", logger.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// serveWS upgrades a tab connection and attaches it to the hub.
func serveWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 64),
	}
	hub.register <- client

	go client.writePump()
	go client.readPump()
}
