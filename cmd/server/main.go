package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/privchat/privchat-server/internal/auth"
	"github.com/privchat/privchat-server/internal/chat"
	"github.com/privchat/privchat-server/internal/server"
	"github.com/privchat/privchat-server/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env file is fine; the environment still applies.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Could not load .env file: %v", err)
	}

	config := server.NewConfigFromEnv()
	server.SetConfig(config)

	db, err := store.Open(config.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database at %s: %v", config.DBPath, err)
	}
	defer db.Close()

	directory := chat.NewDirectory(db)
	conversations := chat.NewConversations(db, directory)
	router := chat.NewRouter()
	messages := chat.NewMessageLog(db, conversations, router)
	presence := chat.NewPresence(db)
	verifier := auth.NewService(db, directory)

	gateway := server.NewGateway(directory, conversations, messages, presence, router, verifier)
	mux := server.SetupRoutes(gateway)
	httpServer := server.CreateServer(config.Port, mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	case sig := <-stop:
		log.Printf("Received signal %s, shutting down...", sig)
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Printf("HTTP shutdown did not complete cleanly: %v", err)
	}
	if err := gateway.Shutdown(shutdownTimeout); err != nil {
		log.Printf("Gateway shutdown did not complete cleanly: %v", err)
	}
}
