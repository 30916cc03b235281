// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Tsegaye16/BookCompanion/internal/api"
	"github.com/Tsegaye16/BookCompanion/internal/app"
	"github.com/Tsegaye16/BookCompanion/internal/config"
	"github.com/Tsegaye16/BookCompanion/internal/di"
	"github.com/Tsegaye16/BookCompanion/internal/utils"
)

func main() {
	log.Println("Starting BookCompanion server...")

	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	logFile := filepath.Join(baseConfig.LogDir, "server.log")
	if err := utils.InitLogger(logFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	if baseConfig.DebugMode {
		utils.GetLogger().SetLogLevel(utils.DEBUG)
	}

	if err := app.InitServices(); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer app.Cleanup()

	if err := performHealthCheck(); err != nil {
		log.Fatalf("Service health check failed: %v", err)
	}

	router, err := api.SetupRouter()
	if err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	log.Printf("Server listening on port %s", baseConfig.Port)
	setupGracefulShutdown(router, baseConfig.Port)
}

func performHealthCheck() error {
	container := di.GetContainer()

	criticalServices := []string{"storage", "llm", "character", "chat"}
	for _, serviceName := range criticalServices {
		if service := container.Get(serviceName); service == nil {
			return fmt.Errorf("critical service not registered: %s", serviceName)
		}
	}
	return nil
}

func setupGracefulShutdown(router *gin.Engine, port string) {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Forced server shutdown: %v", err)
	}

	log.Println("Server stopped")
}
