package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kozaktomas/face-groups/internal/batch"
	"github.com/kozaktomas/face-groups/internal/config"
	"github.com/kozaktomas/face-groups/internal/detector"
	"github.com/kozaktomas/face-groups/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Groups web server.
POST {"imageUrls": [...]} to the configured route (default "/") to get the
images grouped by person. The face detector loads in the background; until it
is ready /health reports "loading" and grouping requests get 503.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides HOST)")
	serveCmd.Flags().String("route", "", "Path of the grouping endpoint (overrides GROUP_ROUTE)")
}

// applyServeFlags overrides config values with explicitly set flags.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = mustGetString(cmd, "host")
	}
	if cmd.Flags().Changed("route") {
		cfg.Server.Route = mustGetString(cmd, "route")
	}
	return cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}

	loader, err := newDetectorLoader(cfg)
	if err != nil {
		return err
	}
	gate := detector.NewGate(loader)
	defer gate.Close()

	fetcher := batch.NewHTTPFetcher(cfg.Batch.FetchTimeout, cfg.Batch.MaxDownloadBytes)
	processor, err := newProcessor(cfg, fetcher, gate, nil)
	if err != nil {
		return err
	}

	server := web.NewServer(cfg, processor, gate)
	addr, err := server.Listen()
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("Loading face detector (%s backend)...\n", cfg.Extractor.Backend)
	gate.Start(ctx)

	var shutdownOnce sync.Once
	shutdown := func() {
		shutdownOnce.Do(func() {
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				fmt.Printf("Error during shutdown: %v\n", err)
			}
		})
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		shutdown()
	}()

	// Stop serving when the detector fails to load.
	loadErr := make(chan error, 1)
	go func() {
		if err := gate.Wait(ctx); err != nil && ctx.Err() == nil {
			loadErr <- err
			shutdown()
		}
	}()

	fmt.Printf("Starting Face Groups on http://%s%s\n", addr, cfg.Server.Route)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	select {
	case err := <-loadErr:
		return err
	default:
		return nil
	}
}
