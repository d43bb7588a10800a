package main

import (
	"os"
	"os/signal"
	"syscall"

	"arena/internal/bootstrap"
	"arena/pkg/logger"
)

func main() {
	container := bootstrap.NewContainer()
	container.MustInit()
	defer logger.Sync()

	log := container.Log
	log.Infof("Starting %s in %s mode", container.Config.App.Name, container.Config.App.Env)

	if err := container.Start(); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	waitForShutdown(container)
}

// waitForShutdown blocks until a termination signal arrives, then
// hands off to the container's coordinated shutdown
func waitForShutdown(container *bootstrap.Container) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		container.Log.Infof("Received signal: %v", sig)
	case <-container.Context.Done():
		container.Log.Info("Context cancelled, shutting down")
	}

	container.Shutdown()
}
