// Command gateway runs a RAMSES-II evohome heating gateway: it talks to an
// HGI80/evofw3 dongle over serial, maintains the discovered system topology,
// and serves fault-log/schedule queries and Prometheus metrics over HTTP.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/MatusOllah/slogcolor"

	"github.com/ramses-rf/gateway/internal/bridge"
	"github.com/ramses-rf/gateway/internal/config"
	"github.com/ramses-rf/gateway/internal/gateway"
	"github.com/ramses-rf/gateway/internal/ramses"
	"github.com/ramses-rf/gateway/internal/transport"
)

const configFile = "config.yaml"

var (
	isVerbose   = flag.Bool("verbose", false, "Enable display of DEBUG log messages")
	wantMonitor = flag.Bool("monitor", false, "Run continuously as a gateway, serving HTTP introspection")
	command     = flag.String("command", "", "Inject a single raw wire command and print any reply, then exit")
	serialPort  = flag.String("serial-port", "", "Serial device of the HGI80/evofw3 dongle (overrides config.yaml)")
	listenAddr  = flag.String("listen", "", "HTTP introspection address (overrides config.yaml)")
)

func main() {
	flag.Parse()

	opts := slogcolor.DefaultOptions
	if *isVerbose {
		opts.Level = slog.LevelDebug
	} else {
		opts.Level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slogcolor.NewHandler(os.Stderr, opts)))

	if *wantMonitor == (*command != "") {
		slog.Error("Exactly one of -monitor or -command is required")
		os.Exit(2)
	}

	conf, err := config.Load(configFile)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			slog.Warn("Configuration file does not exist, using defaults", "fn", configFile)
		default:
			slog.Error("Unable to load configuration file", "fn", configFile, "err", err)
		}
		conf = config.Default()
	} else {
		slog.Debug("Loaded configuration", "fn", configFile)
	}

	if *serialPort != "" {
		conf.Serial = *serialPort
	}
	if *listenAddr != "" {
		conf.ListenAddr = *listenAddr
	}
	if conf.Serial == "" {
		slog.Error("No serial port configured; set 'serial' in config.yaml or pass -serial-port")
		os.Exit(1)
	}

	if conf.HGIAddr != "" {
		addr, err := ramses.ParseAddress(conf.HGIAddr)
		if err != nil {
			slog.Error("Invalid hgi_addr in configuration", "hgi_addr", conf.HGIAddr, "err", err)
			os.Exit(1)
		}
		ramses.HGI = addr
	}

	sink, err := bridge.Open(conf.Serial, conf.BaudRate)
	if err != nil {
		slog.Error("Unable to open serial port", "port", conf.Serial, "err", err)
		os.Exit(1)
	}
	defer sink.Close()

	if *command != "" {
		runInjectCommand(sink, *command)
		return
	}

	var ser2net *gateway.Ser2NetServer
	var txSink transport.Sink = sink
	if conf.TCPBridgeAddr != "" {
		ser2net = gateway.NewSer2NetServer()
		txSink = gateway.TeeSink(sink, ser2net)
	}

	gw := gateway.New(txSink, conf.Names)
	sink.OnMessage = gw.Transport.OnMessage
	sink.OnError = func(err error) {
		slog.Error("Serial read error", "err", err)
	}
	if ser2net != nil {
		ser2net.OnMessage = gw.Transport.OnMessage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	go func() {
		if err := sink.Listen(ctx); err != nil {
			slog.Error("Serial listen loop exited", "err", err)
		}
	}()
	go gw.Run(ctx)
	if ser2net != nil {
		go func() {
			if err := ser2net.Serve(ctx, conf.TCPBridgeAddr); err != nil {
				slog.Error("ser2net bridge exited", "err", err)
			}
		}()
	}

	httpServer := &http.Server{Addr: conf.ListenAddr, Handler: gateway.NewRouter(gw)}
	go func() {
		slog.Info("Serving introspection HTTP", "addr", conf.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server exited", "err", err)
		}
	}()

	slog.Info("Gateway running", "port", conf.Serial)
loop:
	for {
		select {
		case <-time.After(30 * time.Second):
			slog.Info("Stats", "transport", gw.Transport.Stats())
			recordDiscoveredDevices(conf, gw)
			if err := conf.Save(configFile); err != nil {
				slog.Error("Unable to write out configuration file", "fn", configFile, "err", err)
			}
		case <-ctx.Done():
			slog.Info("Exiting due to signal")
			break loop
		}
	}

	recordDiscoveredDevices(conf, gw)
	if err := conf.Save(configFile); err != nil {
		slog.Error("Unable to write out configuration file", "fn", configFile, "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)
}

// runInjectCommand implements -command: it transmits line as-is on the wire
// and prints whatever replies arrive within a short window, then exits. It
// bypasses the QoS engine entirely — there is no retry/priority/correlation
// policy to apply to an operator typing one line by hand.
func runInjectCommand(sink *bridge.SerialSink, line string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sink.OnMessage = func(msg *ramses.Message) {
		slog.Info("Reply", "verb", msg.Verb, "src", msg.Src, "dst", msg.Dst, "code", msg.Code, "payload", msg.Payload)
	}
	sink.OnError = func(err error) {
		slog.Error("Serial read error", "err", err)
	}

	go func() {
		if err := sink.Listen(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Serial listen loop exited", "err", err)
		}
	}()

	if err := sink.Write(line); err != nil {
		slog.Error("Unable to transmit command", "line", line, "err", err)
		os.Exit(1)
	}

	<-ctx.Done()
}

// recordDiscoveredDevices notes every address the topology has seen so far
// against conf's name map, so newly-discovered devices get a placeholder
// entry a human can later fill in — adapted from the teacher's
// config.seen()/config.write() auto-discovery pattern.
func recordDiscoveredDevices(conf *config.Config, gw *gateway.Gateway) {
	for _, addr := range gw.Topology.DeviceAddrs() {
		if conf.Seen(addr.String()) {
			slog.Debug("Discovered new device", "addr", addr)
		}
	}
}
