package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/motionlink/internal/api"
	"github.com/banshee-data/motionlink/internal/config"
	"github.com/banshee-data/motionlink/internal/controller"
	"github.com/banshee-data/motionlink/internal/db"
	"github.com/banshee-data/motionlink/internal/monitoring"
	"github.com/banshee-data/motionlink/internal/serialmux"
	"github.com/banshee-data/motionlink/internal/session"
	"github.com/banshee-data/motionlink/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a JSON config file")
	port        = flag.String("port", config.DefaultPort, "Serial port of the motion controller (ignored in dev mode)")
	listen      = flag.String("listen", config.DefaultListen, "Listen address")
	dbPath      = flag.String("db", config.DefaultDBPath, "SQLite database used when recording")
	record      = flag.Bool("record", false, "Record committed controller states")
	tick        = flag.Duration("tick", config.DefaultTickInterval, "Interval between controller refreshes")
	verbose     = flag.Bool("verbose", false, "Log every read timeout")
	devMode     = flag.Bool("dev", false, "Replay fixture lines instead of opening the serial port")
	fixtures    = flag.String("fixtures", "fixtures.txt", "Fixture file replayed in dev mode")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// fixtureInterval must stay below controller.ReadTimeout. FixturePort ignores
// read timeouts, so a dev-mode Refresh waits for the next fixture line.
const fixtureInterval = 50 * time.Millisecond

// applyFlags copies explicitly set flags over the file configuration.
func applyFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = port
		case "listen":
			cfg.Listen = listen
		case "db":
			cfg.DBPath = dbPath
		case "record":
			cfg.Record = record
		case "verbose":
			cfg.Verbose = verbose
		case "tick":
			d := tick.String()
			cfg.TickInterval = &d
		}
	})
}

// readFixtures returns the non-empty lines of a fixture file.
func readFixtures(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		if line := strings.TrimSpace(scan.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("fixture file %s has no lines", path)
	}
	return lines, nil
}

func openReader(cfg *config.Config) (*controller.Reader, error) {
	if !*devMode {
		return controller.Open(cfg.GetPort())
	}
	lines, err := readFixtures(*fixtures)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixtures: %w", err)
	}
	return controller.NewReader(serialmux.NewFixturePort(lines, fixtureInterval)), nil
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	cfg := &config.Config{}
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	applyFlags(flag.CommandLine, cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	monitoring.SetVerbose(cfg.GetVerbose())

	reader, err := openReader(cfg)
	if err != nil {
		log.Fatalf("failed to open motion controller: %v", err)
	}
	defer reader.Close()
	source := cfg.GetPort()
	if *devMode {
		source = *fixtures
		log.Printf("replaying motion controller fixtures from %s", source)
	} else {
		log.Printf("opened motion controller on %s", source)
	}

	// store stays a nil interface when recording is off so the API reports it.
	var store api.SampleStore
	var database *db.DB
	var recorder *db.Recorder
	if cfg.GetRecord() {
		database, err = db.OpenDB(cfg.GetDBPath())
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()

		recorder, err = db.NewRecorder(database, source, time.Now())
		if err != nil {
			log.Fatalf("failed to start recording: %v", err)
		}
		defer func() {
			if err := recorder.Close(time.Now()); err != nil {
				log.Printf("failed to end recorded session: %v", err)
			}
		}()
		store = database
		log.Printf("recording session %s to %s", recorder.SessionID(), cfg.GetDBPath())
	}

	sessCfg := session.Config{
		Reader:       reader,
		TickInterval: cfg.GetTickInterval(),
	}
	if recorder != nil {
		sessCfg.Recorder = recorder
	}
	sess, err := session.New(sessCfg)
	if err != nil {
		log.Fatalf("failed to create session: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the session loop that owns the controller reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		// stop the HTTP server too if the controller goes away
		defer stop()
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("controller session failed: %v", err)
		}
		sess.Hub().Close()
		log.Print("session routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := api.NewServer(sess, store)
		mux := server.ServeMux()
		server.AttachAdminRoutes(mux)
		if database != nil {
			database.AttachAdminRoutes(mux)
		}

		httpServer := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := httpServer.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
