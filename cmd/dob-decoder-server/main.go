package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sporeprotocol/dob-decoder-go/internal/chainrpc"
	"github.com/sporeprotocol/dob-decoder-go/internal/config"
	"github.com/sporeprotocol/dob-decoder-go/internal/decoderresolver"
	"github.com/sporeprotocol/dob-decoder-go/internal/imagefetch"
	"github.com/sporeprotocol/dob-decoder-go/internal/pipeline"
	"github.com/sporeprotocol/dob-decoder-go/internal/rendercache"
	"github.com/sporeprotocol/dob-decoder-go/internal/rpcserver"
	"github.com/sporeprotocol/dob-decoder-go/internal/spore"
)

var (
	version   = "0.1.0"
	buildTime = "dev"
)

// App holds all the runtime components.
type App struct {
	Settings    *config.Settings
	Logger      *slog.Logger
	Chain       *chainrpc.Client
	Pipeline    *pipeline.Pipeline
	RenderCache *rendercache.Cache
	RPCServer   *rpcserver.Server
	Cron        *cron.Cron
	rpcContext  context.Context
	rpcCancel   context.CancelFunc
}

func main() {
	os.Exit(run())
}

func run() int {
	settingsPath := flag.String("settings", "settings.toml", "Path to settings file")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dob-decoder-server v%s (built %s)\n", version, buildTime)
		return 0
	}

	app, err := setup(*settingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
		return 1
	}

	if err := startServices(app); err != nil {
		app.Logger.Error("failed to start services", "error", err)
		return 1
	}

	app.Logger.Info("dob-decoder-server started", "version", version, "addr", app.Settings.ListenAddress)

	if err := waitForShutdown(app); err != nil {
		app.Logger.Error("shutdown error", "error", err)
		return 1
	}
	return 0
}

// setup initializes all application components. A malformed or absent
// settings file is fatal at startup (spec §7 Propagation policy).
func setup(settingsPath string) (*App, error) {
	app := &App{}

	app.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	settings, err := config.Load(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	app.Settings = settings

	app.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(settings.LogLevel)}))

	app.Chain = chainrpc.New(settings.CKBRPC, settings.IndexerRPC)

	deployments := make([]decoderresolver.DecoderDeployment, 0, len(settings.OnchainDecoderDeployment))
	for _, d := range settings.OnchainDecoderDeployment {
		deployments = append(deployments, decoderresolver.DecoderDeployment{
			CodeHash: d.CodeHash, TxHash: d.TxHash, OutIndex: d.OutIndex,
		})
	}
	resolver := decoderresolver.New(app.Chain, settings.DecodersCacheDirectory, deployments)

	fetcher := imagefetch.New(imagefetch.Gateways(settings.ImageFetcherURL), settings.Dob1MaxCacheSize)

	app.RenderCache = rendercache.New(settings.DobsCacheDirectory, settings.DobsCacheExpirationSec)

	app.Pipeline = &pipeline.Pipeline{
		Reader:         spore.New(app.Chain, settings),
		Resolver:       resolver,
		ImageSource:    fetcher,
		RenderCache:    app.RenderCache,
		MaxCombination: settings.Dob1MaxCombination,
	}

	app.RPCServer = rpcserver.New(settings, app.Pipeline, app.Logger)

	return app, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startServices starts the RPC server and the render-cache sweep cron job.
func startServices(app *App) error {
	app.rpcContext, app.rpcCancel = context.WithCancel(context.Background())
	go func() {
		if err := app.RPCServer.Start(app.rpcContext); err != nil {
			app.Logger.Error("rpc server error", "error", err)
		}
	}()

	sweepInterval := app.Settings.RenderCacheSweepIntervalSec
	if sweepInterval <= 0 {
		sweepInterval = 300
	}
	app.Cron = cron.New()
	_, err := app.Cron.AddFunc(fmt.Sprintf("@every %ds", sweepInterval), func() {
		removed, err := app.RenderCache.Sweep(time.Now())
		if err != nil {
			app.Logger.Error("render cache sweep failed", "error", err)
			return
		}
		if removed > 0 {
			app.Logger.Info("render cache sweep", "removed", removed)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule render cache sweep: %w", err)
	}
	app.Cron.Start()

	return nil
}

func waitForShutdown(app *App) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	app.Logger.Info("shutdown signal received", "signal", sig)

	if app.Cron != nil {
		cronCtx := app.Cron.Stop()
		<-cronCtx.Done()
	}
	if app.rpcCancel != nil {
		app.rpcCancel()
	}

	app.Logger.Info("dob-decoder-server stopped")
	return nil
}
