package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mascotdog/ChatServer/internal/chat"
	"github.com/mascotdog/ChatServer/internal/config"
	"github.com/mascotdog/ChatServer/internal/presence"
	"github.com/mascotdog/ChatServer/internal/store/sqlstore"
	"github.com/mascotdog/ChatServer/internal/ws"
)

var addr = flag.String("addr", "", "listen address (overrides CHAT_ADDR)")

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	st, err := sqlstore.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	registry := presence.NewRegistry()
	service := chat.NewService(st, registry, chat.Options{GroupEcho: cfg.GroupEcho})

	// Clear presence left over from an unclean shutdown before accepting
	// connections.
	if err := service.Reset(); err != nil {
		log.Fatal(err)
	}

	wsServer := ws.NewServer(service, cfg.SendBuffer, cfg.MaxMessageSize)

	r := mux.NewRouter()
	r.Use(loggingMiddleware)
	r.HandleFunc("/ws", wsServer.ServeWS)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"online": registry.Len(),
		})
	}).Methods("GET")

	srv := &http.Server{Addr: cfg.Addr, Handler: r}

	go func() {
		log.Println("Starting server on", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	wsServer.Close()
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}
