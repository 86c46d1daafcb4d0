package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/jreinjr/dreamwalker/internal/api"
	"github.com/jreinjr/dreamwalker/internal/config"
	"github.com/jreinjr/dreamwalker/internal/domain"
	"github.com/jreinjr/dreamwalker/internal/orchestrator"
	"github.com/jreinjr/dreamwalker/internal/rtc"
	"github.com/jreinjr/dreamwalker/internal/session"
	"github.com/jreinjr/dreamwalker/internal/stats"
)

const helpText = `dreamwalker - session client for a real-time AI video pipeline

Establishes a WebRTC session with a Dreamwalker server, keeps the control
channel open for live parameter updates, and logs stream metrics once a
second until interrupted.

Environment Variables (required):
  DW_SERVER_URL   Base URL of the signaling server
  DW_PIPELINE_ID  Processing pipeline to load

Environment Variables (optional):
  DW_WIDTH, DW_HEIGHT  Output dimensions (default 512x512)
  DW_SEED              Generation seed
  DW_INPUT_MODE        Input mode (default "video")
  DW_LOG_LEVEL         zerolog level (default "info")

Options:
  -prompt string   Initial prompt text
  -list-adapters   List the server's style adapters and exit
  -h, --help       Show this help message
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, helpText) }
	prompt := flag.String("prompt", "", "initial prompt text")
	listAdapters := flag.Bool("list-adapters", false, "list style adapters and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dreamwalker: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	negotiator := session.New(session.Config{
		Peers:  rtc.Factory(logger),
		Logger: logger,
	})
	orch := orchestrator.New(negotiator,
		func(serverURL string) domain.Signaler { return api.NewClient(serverURL, logger) },
		0, logger)
	// Frames are drained so the inbound counters (and the stats log) run;
	// decoding and rendering live outside this binary.
	orch.SetFrameSink(discardSink{})

	if *listAdapters {
		adapters, err := listStyleAdapters(ctx, cfg.ServerURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("list adapters")
		}
		for _, a := range adapters {
			fmt.Printf("%s\t%s\n", a.Name, a.File)
		}
		return
	}

	negotiator.Subscribe(func(from, to domain.ConnectionState) {
		logger.Info().Stringer("from", from).Stringer("to", to).Msg("state change")
	})
	negotiator.OnDisconnected(func() { cancel() })
	negotiator.OnStats(func(s stats.Sample) {
		logger.Info().
			Float64("fps", s.FPS).
			Float64("mbps", s.BitrateMbps).
			Msg("stream stats")
	})

	pipeline := domain.PipelineConfig{
		PipelineID:          cfg.PipelineID,
		Width:               cfg.Width,
		Height:              cfg.Height,
		Seed:                cfg.Seed,
		InterpolationMethod: "slerp",
		TIndexList:          []int{0, 16, 32, 45},
		NoiseScale:          1.0,
		ContentScale:        1.0,
		InputMode:           cfg.InputMode,
	}
	if *prompt != "" {
		pipeline.Prompts = []domain.Prompt{{Text: *prompt, Weight: 1.0}}
	}

	if err := orch.Connect(ctx, cfg.ServerURL, pipeline); err != nil {
		logger.Fatal().Err(err).Msg("connect")
	}

	<-ctx.Done()
	orch.Disconnect()
	logger.Info().Msg("done")
}

type discardSink struct{}

func (discardSink) OnFrame([]byte) {}

func listStyleAdapters(ctx context.Context, serverURL string, logger zerolog.Logger) ([]domain.AdapterInfo, error) {
	client := api.NewClient(serverURL, logger)
	return client.ListAdapters(ctx)
}
