// Command mocap replays a recorded RGBD sequence and tracks the
// configured markers through it, printing per-tick positions and a run
// summary. Configuration comes from a JSON or YAML file; a handful of
// environment variables override it for scripted runs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"

	"github.com/Kael-Facon/rgbd-mocap/internal/config"
	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/frames"
	"github.com/Kael-Facon/rgbd-mocap/internal/mocap/pipeline"
	"github.com/Kael-Facon/rgbd-mocap/internal/monitoring"
)

var (
	configPath = flag.String("config", "", "Path to the run configuration (.json, .yaml)")
	dirFlag    = flag.String("dir", "", "Override the frame directory from the config")
	startFlag  = flag.Int("start", -1, "Override the first frame index")
	endFlag    = flag.Int("end", -1, "Override the end frame index (exclusive)")
	outPath    = flag.String("out", "", "Write per-tick positions as JSON lines to this file")
	quiet      = flag.Bool("quiet", false, "Suppress per-tick position output")
	debugMode  = flag.Bool("debug", false, "Enable diagnostic logging to stderr")
	traceMode  = flag.Bool("trace", false, "Enable per-tick trace logging to stderr (implies -debug)")
)

// envOverrides mirrors the flags for scripted runs; flags win when both
// are set.
type envOverrides struct {
	Config string `env:"MOCAP_CONFIG"`
	Dir    string `env:"MOCAP_DIR"`
	Debug  bool   `env:"MOCAP_DEBUG"`
	Trace  bool   `env:"MOCAP_TRACE"`
}

func main() {
	flag.Parse()

	var envCfg envOverrides
	if err := env.Parse(&envCfg); err != nil {
		log.Fatalf("parse environment: %v", err)
	}
	if *configPath == "" {
		*configPath = envCfg.Config
	}
	if *dirFlag == "" {
		*dirFlag = envCfg.Dir
	}
	*debugMode = *debugMode || *traceMode || envCfg.Debug || envCfg.Trace
	*traceMode = *traceMode || envCfg.Trace

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "mocap: no configuration; use -config or MOCAP_CONFIG")
		flag.Usage()
		os.Exit(2)
	}

	setupLogging(*debugMode, *traceMode)

	if err := run(); err != nil {
		log.Fatalf("mocap: %v", err)
	}
}

func setupLogging(debug, trace bool) {
	var diag, traceW io.Writer
	if debug {
		diag = os.Stderr
	}
	if trace {
		traceW = os.Stderr
	}
	pipeline.SetLogWriters(os.Stderr, diag, traceW)
	if !debug {
		monitoring.SetLogger(nil)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dirFlag != "" {
		cfg.Directory = *dirFlag
	}
	if *startFlag >= 0 {
		cfg.StartIndex = *startFlag
	}
	if *endFlag >= 0 {
		cfg.EndIndex = *endFlag
	}

	converter, err := cfg.Converter()
	if err != nil {
		return err
	}

	var out *os.File
	if *outPath != "" {
		out, err = os.Create(*outPath)
		if err != nil {
			return err
		}
		defer out.Close()
	}

	opts := pipeline.Options{
		Loader:    &frames.DirLoader{Dir: cfg.Directory},
		Start:     cfg.StartIndex,
		End:       cfg.EndIndex,
		Tracking:  cfg.TrackConfig(),
		Crops:     cfg.CropSpecs(),
		Converter: converter,
		Sink:      makeSink(out, *quiet),
	}

	session, err := pipeline.NewSession(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := session.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("run %s: %d ticks, %d skipped\n", session.ID, stats.Ticks, stats.Skipped)
	fmt.Printf("avg load %s, avg compute %s, avg tick %s\n",
		stats.AvgLoad, stats.AvgCompute, stats.AvgTotal)
	return nil
}

// makeSink builds the per-tick observer: optional JSONL file output plus
// the default stdout position dump.
func makeSink(out *os.File, quiet bool) pipeline.Sink {
	var enc *json.Encoder
	if out != nil {
		enc = json.NewEncoder(out)
	}
	return func(tick pipeline.Tick) {
		if enc != nil {
			if err := enc.Encode(tick); err != nil {
				log.Printf("write tick %d: %v", tick.Index, err)
			}
		}
		if quiet {
			return
		}
		for _, p := range tick.Positions {
			fmt.Printf("frame %d %s (%d, %d) visible=%t\n",
				tick.Index, p.Name, p.X, p.Y, p.Visible)
		}
	}
}
