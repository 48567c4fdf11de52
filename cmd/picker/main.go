package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/picker/internal/api"
	"github.com/banshee-data/picker/internal/arm"
	"github.com/banshee-data/picker/internal/config"
	"github.com/banshee-data/picker/internal/db"
	"github.com/banshee-data/picker/internal/layout"
	"github.com/banshee-data/picker/internal/planner"
	"github.com/banshee-data/picker/internal/serialmux"
	"github.com/banshee-data/picker/internal/simarm"
	"github.com/banshee-data/picker/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to JSON config file (defaults built in when empty)")
	devMode     = flag.Bool("dev", false, "Run against a simulated arm and read migrations from the source tree")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	port        = flag.String("port", "", "Serial port of the arm controller (overrides config, ignored in dev mode)")
	dbPath      = flag.String("db", "", "Path to the SQLite inventory (overrides config)")
	layoutPath  = flag.String("layout", "", "Warehouse layout YAML to import at startup")
	migrateOnly = flag.Bool("migrate-only", false, "Apply migrations (and the layout, if given) then exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
	server      = flag.String("server", "http://localhost:8080", "Picker server used by the order subcommand")
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: picker [flags] [command]\n\n")
	fmt.Fprintf(out, "Commands:\n")
	fmt.Fprintf(out, "  (none)              run the planner server\n")
	fmt.Fprintf(out, "  migrate <action>    manage the database schema (see 'picker migrate help')\n")
	fmt.Fprintf(out, "  order <sku>...      submit an order to a running server\n")
	fmt.Fprintf(out, "  history [n]         list recent fulfilments from a running server\n\n")
	fmt.Fprintf(out, "Flags:\n")
	flag.PrintDefaults()
}

// Main
func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	db.DevMode = *devMode

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlags(cfg)

	if args := flag.Args(); len(args) > 0 {
		if err := runCommand(cfg, args); err != nil {
			log.Fatal(err)
		}
		return
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads path, or starts from the built-in defaults when path is
// empty, then overlays the environment.
func loadConfig(path string) (*config.PlannerConfig, error) {
	cfg := config.EmptyConfig()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags lets explicit command-line flags win over file and environment.
func applyFlags(cfg *config.PlannerConfig) {
	if *listen != "" {
		cfg.Listen = listen
	}
	if *port != "" {
		cfg.SerialPort = port
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
}

func runCommand(cfg *config.PlannerConfig, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "migrate":
		err := db.RunMigrateCommand(os.Stdout, args[1:], cfg.GetDBPath())
		if errors.Is(err, db.ErrUsage) {
			db.PrintMigrateHelp(os.Stderr)
		}
		return err
	case "order":
		return runOrder(ctx, os.Stdout, api.NewClient(*server, nil), args[1:])
	case "history":
		return runHistory(ctx, os.Stdout, api.NewClient(*server, nil), args[1:])
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// openArm connects to the real controller, or to a simulated arm in dev mode.
func openArm(cfg *config.PlannerConfig) (serialmux.SerialMuxInterface, error) {
	if *devMode {
		sim := cfg.GetSimulator()
		log.Printf("dev mode: using simulated arm, hazard %+v", cfg.GetHazard())
		return serialmux.NewSerialMux(simarm.New(simarm.Config{
			Hazard:            cfg.GetHazard(),
			MoveLatency:       sim.GetMoveLatency(),
			MotionLatency:     sim.GetMotionLatency(),
			TelemetryInterval: sim.GetTelemetryInterval(),
			Jammed:            sim.GetJammed(),
		})), nil
	}
	return serialmux.NewRealSerialMux(cfg.GetSerialPort(), serialmux.PortOptions{BaudRate: cfg.GetBaudRate()})
}

func run(cfg *config.PlannerConfig) error {
	store, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	if *layoutPath != "" {
		l, err := layout.Load(*layoutPath)
		if err != nil {
			return err
		}
		if err := store.ImportLayout(context.Background(), l); err != nil {
			return fmt.Errorf("failed to import layout: %w", err)
		}
		log.Printf("imported %d slots from %s", len(l.Slots), *layoutPath)
	}
	if *migrateOnly {
		log.Print("migrations applied, exiting")
		return nil
	}

	armSerial, err := openArm(cfg)
	if err != nil {
		return fmt.Errorf("failed to open arm port: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the arm link outlives the HTTP server so an order in flight can finish
	linkCtx, closeLink := context.WithCancel(context.Background())

	// wait group for the serial monitor and telemetry routines
	var wg sync.WaitGroup
	defer func() {
		closeLink()
		armSerial.Close()
		wg.Wait()
		log.Printf("graceful shutdown complete")
	}()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := armSerial.Monitor(linkCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// log untagged telemetry lines from the controller
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := armSerial.Subscribe()
		defer armSerial.Unsubscribe(id)
		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				log.Printf("arm: %s", line)
			case <-linkCtx.Done():
				log.Printf("telemetry routine terminated")
				return
			}
		}
	}()

	client := arm.NewClient(armSerial)
	client.SetRequestTimeout(cfg.GetRequestTimeout())

	armID, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("arm is not answering: %w", err)
	}
	log.Printf("connected to arm %s", armID)

	fulfiller, err := planner.NewFulfiller(ctx, client, store, planner.Config{
		Hazard:        cfg.GetHazard(),
		BaggingSlotID: cfg.GetBaggingSlot(),
	})
	if err != nil {
		return err
	}

	mux := api.NewServer(api.Options{
		Fulfiller:    fulfiller,
		Arm:          client,
		Journal:      store,
		OrderTimeout: cfg.GetOrderTimeout(),
	}).ServeMux()
	armSerial.AttachAdminRoutes(mux)
	if err := store.AttachAdminRoutes(mux); err != nil {
		log.Printf("failed to attach database admin routes: %v", err)
	}

	srv := &http.Server{
		Addr:    cfg.GetListen(),
		Handler: api.LoggingMiddleware(mux),
	}

	// Start server in a goroutine so it doesn't block
	serveErr := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetOrderTimeout()+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("HTTP server stopped")
	return nil
}
