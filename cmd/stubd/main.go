package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scratcha-console/client/internal/stubserver"
)

func main() {
	addr := flag.String("addr", ":8001", "listen address")
	seed := flag.Bool("seed", false, "seed a demo account and application")
	flag.Parse()

	stub := stubserver.New(stubserver.Options{})
	if *seed {
		userID := stub.SeedUser("admin@example.com", "12345678", "admin",
			[]string{"admin", "user"}, []string{"manage_apps"})
		appID := stub.SeedApp("demo site", "seeded demo application")
		stub.SeedKey(appID, "demo key")
		log.Printf("seeded user %s (admin@example.com / 12345678), app %s", userID, appID)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           stub.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("stub dashboard API listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down stub server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("stub server stopped")
}
