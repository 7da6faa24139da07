package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/framecloud/internal/api"
	"github.com/banshee-data/framecloud/internal/config"
	"github.com/banshee-data/framecloud/internal/db"
	"github.com/banshee-data/framecloud/internal/monitor"
	"github.com/banshee-data/framecloud/internal/version"
	"github.com/banshee-data/framecloud/internal/video"
)

var (
	//go:embed static/*
	staticFiles embed.FS
	devMode     = flag.Bool("dev", false, "Run in dev mode (synthetic video sources, static files from disk)")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	dbPath      = flag.String("db", "", "Path to the sqlite run history database (overrides config)")
	configPath  = flag.String("config", "", "Path to a JSON tuning config")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// newSourceFactory builds the video source opener. Source strings of the
// form "synthetic:WIDTHxHEIGHT:SECONDS" always produce a synthetic source;
// in dev mode any other string does too, so the service runs without an
// ffmpeg binary or real footage.
func newSourceFactory(dev bool) api.SourceFactory {
	return func(source string) (video.FrameSource, error) {
		if spec, ok := strings.CutPrefix(source, "synthetic:"); ok {
			return parseSyntheticSpec(spec)
		}
		if dev {
			return video.NewSyntheticSource(640, 480, 10), nil
		}
		return video.NewFFmpegSource(source)
	}
}

// parseSyntheticSpec parses "WIDTHxHEIGHT:SECONDS", e.g. "640x480:10".
func parseSyntheticSpec(spec string) (video.FrameSource, error) {
	var width, height int
	var duration float64
	if _, err := fmt.Sscanf(spec, "%dx%d:%f", &width, &height, &duration); err != nil {
		return nil, fmt.Errorf("invalid synthetic source %q (want WIDTHxHEIGHT:SECONDS): %w", spec, err)
	}
	if width <= 0 || height <= 0 || duration <= 0 {
		return nil, fmt.Errorf("invalid synthetic source %q: dimensions and duration must be positive", spec)
	}
	return video.NewSyntheticSource(width, height, duration), nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	var tuning *config.TuningConfig
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	addr := tuning.GetListen()
	if *listen != "" {
		addr = *listen
	}
	dbFile := tuning.GetDBPath()
	if *dbPath != "" {
		dbFile = *dbPath
	}

	database, err := db.New(dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()
	if err := database.MigrateUp(); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	server := api.NewServer(api.ServerConfig{
		Thresholds: tuning.Thresholds(),
		SampleRate: tuning.GetSampleRate(),
		FrameDelay: tuning.GetFrameDelay(),
		Sources:    newSourceFactory(*devMode),
		Runs:       db.NewRunStore(database),
		Clouds:     db.NewCloudStore(database),
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (tailsql console, backup) and
		// the debug chart endpoints
		database.AttachAdminRoutes(mux)
		monitor.New(server.Scheduler(), db.NewRunStore(database)).AttachRoutes(mux)

		// mount the API handlers; the api mux registers absolute paths
		apiMux := server.ServeMux()
		mux.Handle("/api/", apiMux)
		mux.Handle("/healthz", apiMux)

		// read static files from the embedded filesystem in production or
		// from the local ./static in dev for easier iteration without
		// restarting the server
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./static"))
		} else {
			staticHandler = http.FileServer(http.FS(staticFiles))
		}
		mux.Handle("/", staticHandler)

		httpServer := &http.Server{
			Addr:    addr,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("framecloud %s listening on %s", version.String(), addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Abandon any in-flight run on shutdown so the scheduler goroutine
	// exits before the database closes.
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		server.Scheduler().Cancel()
		server.Scheduler().Wait()
		log.Printf("scheduler stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
