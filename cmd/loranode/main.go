package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/namsral/flag"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/michcald/loranode/config"
	"github.com/michcald/loranode/node"
	"github.com/michcald/loranode/store"
	"github.com/michcald/loranode/sx1262"
	"github.com/michcald/loranode/transport"
	"github.com/michcald/loranode/web"
)

const appName = "loranode"

var (
	version = "no version from LDFLAGS"

	configPath = flag.String("config", "", "YAML configuration file")
	logLevel   = flag.String("logLevel", "", "log level: debug, info, warn or error")
	role       = flag.String("role", "", "node role: companion or router")
	tcpAddr    = flag.String("tcpAddr", "", "client TCP listen address")
	serialPort = flag.String("serialPort", "", "client serial device")
	apiAddr    = flag.String("apiAddr", "", "HTTP status API and metrics address")
	offline    = flag.Bool("offline", false, "run without the radio")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(cfg.Log)
	stdlog.SetOutput(log.NewStdlibAdapter(logger))

	level.Info(logger).Log("msg", "Starting app", "version", version, "role", cfg.Node.Role)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// catch termination
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	key, err := cfg.PublicKey()
	if err != nil {
		level.Error(logger).Log("msg", "invalid public key", "error", err)
		os.Exit(2)
	}
	if key == (store.PublicKey{}) {
		if key, err = generateKey(); err != nil {
			level.Error(logger).Log("msg", "can't generate identity key", "error", err)
			os.Exit(2)
		}
		level.Warn(logger).Log("msg", "no public key configured, using a generated one", "public_key", key)
	}

	var dev *sx1262.Device
	if cfg.Hardware.Enabled && !*offline {
		hw := cfg.Hardware
		dev, err = sx1262.New(sx1262.Config{
			RadioConfig:    cfg.RadioConfig(),
			ResetPin:       hw.ResetPin,
			BusyPin:        hw.BusyPin,
			DIO1Pin:        hw.DIO1Pin,
			SpiBusPath:     hw.SPIBus,
			SpiClockHz:     hw.SPIClockHz,
			DIO2AsRFSwitch: hw.DIO2AsRFSwitch,
			TCXOVoltage:    hw.TCXOVoltage,
			Logger:         sx1262.NewKitLogger(logger),
		})
		if err != nil {
			level.Error(logger).Log("msg", "can't initialize radio", "error", err)
			os.Exit(2)
		}
		level.Info(logger).Log("msg", "radio listening", "radio", dev)
	} else {
		level.Warn(logger).Log("msg", "running without radio")
	}

	nodeRole, _ := node.ParseRole(cfg.Node.Role)
	opts := node.Options{
		Role: nodeRole,
		Identity: node.NewIdentity(node.Profile{
			Name:              cfg.Node.Name,
			PublicKey:         key,
			AdvertType:        advertType(nodeRole),
			Lat:               cfg.Node.Lat,
			Lon:               cfg.Node.Lon,
			MaxTxPower:        cfg.Node.MaxTxPower,
			BatteryMillivolts: cfg.Node.BatteryMillivolts,
		}),
		Contacts: store.NewMemoryContacts(cfg.Node.MaxContacts),
		Messages: store.NewMemoryMessages(cfg.Node.MaxMessages),
		Channels: store.NewMemoryChannels(),
		Logger:   logger,
	}
	if dev != nil {
		opts.Radio = dev
	}
	n, err := node.New(opts)
	if err != nil {
		level.Error(logger).Log("msg", "can't build node", "error", err)
		os.Exit(2)
	}

	g, ctx := errgroup.WithContext(ctx)

	var (
		grpcHealthServer *grpc.Server
		httpServer       *http.Server
		tcpListener      *transport.TCPListener
		serialConn       *transport.Serial
	)

	// gRPC Health Server
	healthServer := health.NewServer()
	healthService := fmt.Sprintf("grpc.health.v1.%s", appName)
	if cfg.HTTP.HealthAddr != "" {
		hln, err := net.Listen("tcp", cfg.HTTP.HealthAddr)
		if err != nil {
			level.Error(logger).Log("msg", "gRPC Health server: failed to listen", "error", err)
			os.Exit(2)
		}
		grpcHealthServer = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcHealthServer, healthServer)
		g.Go(func() error {
			level.Info(logger).Log("msg", fmt.Sprintf("gRPC health server serving at %s", cfg.HTTP.HealthAddr))
			return grpcHealthServer.Serve(hln)
		})
	}

	if dev != nil {
		g.Go(func() error {
			return dev.Run(ctx)
		})
		g.Go(func() error {
			return n.ServeRadio(ctx, dev)
		})
	}

	if cfg.Node.TCPAddr != "" {
		tcpListener, err = transport.ListenTCP(cfg.Node.TCPAddr)
		if err != nil {
			level.Error(logger).Log("msg", "TCP server: failed to listen", "error", err)
			os.Exit(2)
		}
		level.Info(logger).Log("msg", fmt.Sprintf("TCP clients served at %s", tcpListener.Addr()))
		g.Go(func() error {
			return n.ServeListener(ctx, tcpListener, node.KindTCP)
		})
	}

	if cfg.Node.SerialPort != "" {
		serialConn, err = transport.OpenSerial(cfg.Node.SerialPort, cfg.Node.SerialBaud)
		if err != nil {
			level.Error(logger).Log("msg", "can't open serial port", "error", err, "port", cfg.Node.SerialPort)
			os.Exit(2)
		}
		level.Info(logger).Log("msg", "serial client served", "port", cfg.Node.SerialPort)
		g.Go(func() error {
			return n.Serve(ctx, serialConn, node.KindSerial)
		})
	}

	// malformed frames
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-n.Errors():
				level.Debug(logger).Log("msg", "malformed frame reported", "error", err)
			}
		}
	})

	if cfg.HTTP.APIAddr != "" {
		s := web.NewServer(appName, logger, n, radioStatus(dev))
		httpServer = &http.Server{
			Addr:         cfg.HTTP.APIAddr,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			Handler:      s.Handler(),
		}
		g.Go(func() error {
			level.Info(logger).Log("msg", fmt.Sprintf("HTTP API server serving at %s", cfg.HTTP.APIAddr))
			if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)

	select {
	case <-interrupt:
		break
	case <-ctx.Done():
		break
	}

	level.Warn(logger).Log("msg", "received shutdown signal")

	healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)

	// stop every loop before releasing what they use
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}

	if grpcHealthServer != nil {
		grpcHealthServer.GracefulStop()
	}

	err = g.Wait()

	if tcpListener != nil {
		tcpListener.Close()
	}
	if serialConn != nil {
		serialConn.Close()
	}
	if dev != nil {
		if cerr := dev.Close(); cerr != nil {
			level.Error(logger).Log("msg", "can't close radio", "error", cerr)
		}
	}

	if err != nil {
		level.Error(logger).Log("msg", "server returning an error", "error", err)
		os.Exit(2)
	}
}

func applyFlags(cfg *config.Config) {
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *role != "" {
		cfg.Node.Role = *role
	}
	if *tcpAddr != "" {
		cfg.Node.TCPAddr = *tcpAddr
	}
	if *serialPort != "" {
		cfg.Node.SerialPort = *serialPort
	}
	if *apiAddr != "" {
		cfg.HTTP.APIAddr = *apiAddr
	}
}

func newLogger(c config.LogConfig) log.Logger {
	var w io.Writer = os.Stdout
	if c.File != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
		})
	}

	logger := log.NewJSONLogger(log.NewSyncWriter(w))
	logger = log.With(logger, "caller", log.DefaultCaller, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "app", appName)

	var allow level.Option
	switch c.Level {
	case "debug":
		allow = level.AllowDebug()
	case "warn":
		allow = level.AllowWarn()
	case "error":
		allow = level.AllowError()
	default:
		allow = level.AllowInfo()
	}
	return level.NewFilter(logger, allow)
}

func generateKey() (store.PublicKey, error) {
	var key store.PublicKey
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return key, err
	}
	copy(key[:], pub)
	return key, nil
}

func advertType(r node.Role) uint8 {
	if r == node.RoleRouter {
		return node.AdvertTypeRepeater
	}
	return node.AdvertTypeChat
}

// radioStatus avoids handing the web server a typed nil.
func radioStatus(dev *sx1262.Device) web.Radio {
	if dev == nil {
		return nil
	}
	return dev
}
