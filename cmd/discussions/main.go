package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/mikroblog/discussions/internal/config"
	"github.com/mikroblog/discussions/internal/notifications"
	"github.com/mikroblog/discussions/internal/pipeline"
	"github.com/mikroblog/discussions/internal/scheduler"
	"github.com/mikroblog/discussions/internal/screenshot"
	"github.com/mikroblog/discussions/internal/speech"
	"github.com/mikroblog/discussions/internal/storage"
	"github.com/sirupsen/logrus"
)

const usage = `usage: discussions <mode> [args]

modes:
  discover <idStart> <idEnd>       fetch, classify and emit entries for curation
  produce <idStart> <idEnd>        synthesize audio and video script for curated entries
  videoscript <id> <entriesDir>    regenerate the video assembly script
  redo <entriesDir> <index> [-screenshot]  redo one entry's screenshot (and audio)
  speech-test                      synthesize the speech test file
  watch                            run discover on a schedule with a status server
`

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	store, err := newStorage(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}

	notifier := notifications.NewService(cfg)

	var synthesizer speech.Synthesizer
	azure := speech.NewAzureSynthesizer(cfg.SpeechRegion, cfg.SpeechEndpoint, cfg.SpeechAPIKey, cfg.MaleVoice, cfg.FemaleVoice)
	if azure.IsEnabled() {
		synthesizer = azure
	} else {
		logrus.Info("Speech synthesis disabled - missing credentials")
	}

	mode := args[0]
	args = args[1:]

	var renderer *screenshot.Renderer
	if mode == "discover" || mode == "redo" || mode == "watch" {
		renderer = screenshot.NewRenderer()
		defer renderer.Close()
	}

	service := pipeline.NewService(cfg, store, notifier, synthesizer, rendererOrNil(renderer))

	ctx := context.Background()

	switch mode {
	case "discover":
		start, end := parseRange(args)
		err = service.Discover(ctx, start, end)
	case "produce":
		start, end := parseRange(args)
		err = service.Produce(ctx, start, end)
	case "videoscript":
		if len(args) != 2 {
			fatalUsage()
		}
		id := parseInt(args[0])
		err = service.GenerateVideoScript(id, args[1])
	case "redo":
		if len(args) < 2 {
			fatalUsage()
		}
		redoAudio := len(args) < 3 || args[2] != "-screenshot"
		err = service.Redo(ctx, args[0], parseInt(args[1]), redoAudio)
	case "speech-test":
		err = service.SpeechTest(ctx)
	case "watch":
		err = runWatch(cfg, service)
	default:
		fatalUsage()
	}

	if err != nil {
		logrus.Fatalf("Mode %s failed: %v", mode, err)
	}
}

func newStorage(cfg *config.Config) (storage.Interface, error) {
	if cfg.StorageBackend == "azure" {
		return storage.NewAzureStorage(cfg.StorageAccount, cfg.StorageContainer)
	}
	return storage.NewLocalStorage(cfg.WorkplaceDir)
}

func rendererOrNil(r *screenshot.Renderer) pipeline.Renderer {
	if r == nil {
		return nil
	}
	return r
}

// runWatch starts the cron scheduler plus the HTTP status surface and blocks
// until interrupted.
func runWatch(cfg *config.Config, service *pipeline.Service) error {
	schedulerService := scheduler.NewService(cfg, service)
	if err := schedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer schedulerService.Stop()

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")
	router.HandleFunc("/metrics", metricsHandler(service)).Methods("GET")
	router.HandleFunc("/ranges", rangesHandler(service)).Methods("GET")
	router.HandleFunc("/trigger", triggerHandler(schedulerService)).Methods("POST")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Status server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Status server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	return nil
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

func metricsHandler(service *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(service.GetMetrics()))
	}
}

func rangesHandler(service *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tracker := service.Tracker()
		if err := tracker.Load(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(tracker.Intervals())
	}
}

func triggerHandler(schedulerService *scheduler.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		go func() {
			if err := schedulerService.RunNextBlock(); err != nil {
				logrus.Errorf("Manual discover trigger failed: %v", err)
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"Discover run triggered"}`))
	}
}

func parseRange(args []string) (int, int) {
	if len(args) != 2 {
		fatalUsage()
	}
	return parseInt(args[0]), parseInt(args[1])
}

func parseInt(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		fatalUsage()
	}
	return v
}

func fatalUsage() {
	fmt.Fprint(os.Stderr, usage)
	os.Exit(2)
}
