// depthview - live depth, color and point cloud viewer with frame capture
// Press the save key (default "s") in a viewer window to write the current frames.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/teslashibe/go-depthview/internal/httpc"
	"github.com/teslashibe/go-depthview/internal/log"
	"github.com/teslashibe/go-depthview/pkg/sensor"
	"github.com/teslashibe/go-depthview/pkg/visualizer"
	"github.com/teslashibe/go-depthview/pkg/viz"
)

func main() {
	cfg, query, err := loadConfig()
	if query != "" {
		os.Exit(printStatus(query))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(2)
	}
	log.Init(cfg.LogLevel)
	log.Debug("configuration loaded",
		"backend", cfg.Backend,
		"source", cfg.Source.Backend,
		"poll", cfg.PollPeriod,
		"cloud", cfg.EnableCloud,
	)
	if cfg.Backend == viz.BackendHeadless {
		log.Warn("headless backend selected, nothing will be displayed")
	}

	app, err := visualizer.New(cfg, log.Component("visualizer"))
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		if errors.Is(err, viz.ErrBackendUnavailable) {
			log.Error("display backend unavailable", "backend", cfg.Backend, "error", err)
		} else {
			log.Error("runtime error", "error", err)
		}
		os.Exit(1)
	}
	log.Info("depthview exited")
}

// loadConfig applies defaults, then the yaml file, then DEPTHVIEW_* env,
// then flags that were set explicitly.
func loadConfig() (visualizer.Config, string, error) {
	cfg := visualizer.DefaultConfig()

	configPath := flag.String("config", "", "YAML config file")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	noCloud := flag.Bool("no-cloud", false, "Disable point cloud visualization")
	auto := flag.Bool("auto-contrast", false, "Stretch each depth frame over its own min/max")
	depthMin := flag.Float64("depth-min", cfg.DepthMin, "Lower bound of the fixed depth range")
	depthMax := flag.Float64("depth-max", cfg.DepthMax, "Upper bound of the fixed depth range")
	period := flag.Duration("poll", cfg.PollPeriod, "Render poll period")
	saveKey := flag.String("save-key", cfg.SaveKey, "Key that saves the current frames")
	outDir := flag.String("out", cfg.OutputDir, "Directory for saved frames")
	format := flag.String("format", cfg.ExportFormat, "Saved frame format: png, tiff")
	backend := flag.String("backend", cfg.Backend, "Display backend: auto, gocv, headless")
	source := flag.String("source", string(cfg.Source.Backend), "Frame source: mock, replay")
	replayDir := flag.String("replay-dir", cfg.Source.Dir, "Directory replayed by -source replay")
	statusAddr := flag.String("status", "", "Serve the JSON status API on this address, e.g. :8090")
	query := flag.String("query", "", "Print the status of a running viewer, e.g. http://localhost:8090, and exit")
	flag.Parse()

	if *query != "" {
		return cfg, *query, nil
	}
	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			return cfg, "", err
		}
	}
	cfg.LoadEnvConfig()

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "debug":
			if *debug {
				cfg.LogLevel = "debug"
			}
		case "no-cloud":
			cfg.EnableCloud = !*noCloud
		case "auto-contrast":
			cfg.AutoContrast = *auto
		case "depth-min":
			cfg.DepthMin = *depthMin
		case "depth-max":
			cfg.DepthMax = *depthMax
		case "poll":
			cfg.PollPeriod = *period
		case "save-key":
			cfg.SaveKey = *saveKey
		case "out":
			cfg.OutputDir = *outDir
		case "format":
			cfg.ExportFormat = *format
		case "backend":
			cfg.Backend = *backend
		case "source":
			cfg.Source.Backend = sensor.Backend(*source)
		case "replay-dir":
			cfg.Source.Dir = *replayDir
		case "status":
			cfg.StatusAddr = *statusAddr
		}
	})
	return cfg, "", cfg.Validate()
}

// printStatus fetches /api/status from base and prints it as indented JSON.
func printStatus(base string) int {
	ctx, cancel := context.WithTimeout(context.Background(), httpc.DefaultTimeout)
	defer cancel()

	var st visualizer.Stats
	if err := httpc.GetJSON(ctx, strings.TrimRight(base, "/")+"/api/status", &st); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return 1
	}
	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}
