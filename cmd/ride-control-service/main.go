package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/config"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/core"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/hardware"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/logger"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/messaging"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/roboclaw"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/sequencer"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/web"
)

func main() {
	var configPath string
	var logLevel int
	flag.StringVar(&configPath, "config", "config.yaml", "Path to the service configuration file")
	flag.IntVar(&logLevel, "log", -1, "Log level override (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	flag.Parse()

	// Under systemd the journal already timestamps every line.
	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level := parseLogLevel(cfg.LogLevel)
	if logLevel >= 0 {
		level = logger.LogLevel(logLevel)
	}
	l := logger.NewLogger(stdLogger, level)

	l.Infof("Starting ride control service...")

	cycles, err := sequencer.LoadCycles(cfg.Cycles.File)
	if err != nil {
		l.Fatalf("Failed to load ride cycles: %v", err)
	}
	cycle, ok := cycles[cfg.Cycles.Active]
	if !ok {
		l.Fatalf("Ride cycle %q not defined in %s", cfg.Cycles.Active, cfg.Cycles.File)
	}
	l.Infof("Loaded ride cycle %q with %d instructions", cfg.Cycles.Active, len(cycle))

	var io core.IOController
	var simIO *hardware.SimulatedIO
	if cfg.Control.Simulated {
		l.Infof("Running with simulated I/O")
		simIO = hardware.NewSimulatedIO(l)
		io = simIO
	} else {
		transport, err := roboclaw.OpenSerial(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Serial.Timeout.Std())
		if err != nil {
			l.Fatalf("Failed to open serial port %s: %v", cfg.Serial.Port, err)
		}
		rc := roboclaw.New(transport, roboclaw.Config{
			Address:     cfg.Serial.Address,
			Timeout:     cfg.Serial.Timeout.Std(),
			AutoRecover: cfg.Serial.AutoRecover,
		}, l)
		if version, err := rc.ReadVersion(); err != nil {
			l.Warnf("Motor controller not answering yet: %v", err)
		} else {
			l.Infof("Motor controller firmware: %s", version)
		}
		io, err = hardware.NewPiIO(rc, l)
		if err != nil {
			l.Fatalf("Failed to initialize GPIO: %v", err)
		}
	}

	var rcc *core.RideControlComputer
	var redisClient *messaging.RedisClient
	if cfg.Redis.Enabled {
		redisClient = messaging.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, l,
			func(name string) error { return rcc.Command(name) })
		if err := redisClient.Connect(); err != nil {
			l.Fatalf("Failed to connect to Redis: %v", err)
		}
	}

	opts := core.Options{
		TickInterval: cfg.Control.TickInterval.Std(),
		DemoMode:     cfg.Control.DemoMode,
	}
	if redisClient != nil {
		opts.Publisher = redisClient
	}
	rcc = core.NewRideControlComputer(io, cycle, l, opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var webServer *web.Server
	if cfg.Web.Enabled {
		var sim web.InputSimulator
		if simIO != nil {
			sim = simIO
		}
		addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
		webServer = web.NewServer(addr, rcc, sim, l)
		go func() {
			if err := webServer.Start(); err != nil {
				l.Errorf("Web server stopped: %v", err)
				stop()
			}
		}()
	}

	if redisClient != nil {
		redisClient.StartListening()
	}

	if err := rcc.Run(ctx); err != nil && err != context.Canceled {
		l.Errorf("Control loop exited: %v", err)
	}

	l.Infof("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if webServer != nil {
		if err := webServer.Shutdown(shutdownCtx); err != nil {
			l.Warnf("Web server shutdown: %v", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			l.Warnf("Redis shutdown: %v", err)
		}
	}
	if err := io.Close(); err != nil {
		l.Warnf("I/O shutdown: %v", err)
	}
	l.Infof("Shutdown complete")
}

func parseLogLevel(s string) logger.LogLevel {
	switch s {
	case "none":
		return logger.LogLevelNone
	case "error":
		return logger.LogLevelError
	case "warn", "warning":
		return logger.LogLevelWarning
	case "debug":
		return logger.LogLevelDebug
	default:
		return logger.LogLevelInfo
	}
}
