package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	port := flag.String("port", "", "Override server.listen (e.g. :8090)")
	sampleRate := flag.Uint("sample-rate", 0, "Override device.sample_rate")
	fftSize := flag.Int("fft-size", 0, "Override dsp.fft_size")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	debugMode := *debug
	if v := os.Getenv("LOGLEVEL"); v == "debug" {
		debugMode = true
	}
	if debugMode {
		log.Println("debug logging enabled")
	}

	cfg, err := LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if *port != "" {
		cfg.Server.Listen = *port
	}
	if *sampleRate != 0 {
		cfg.Device.SampleRate = uint32(*sampleRate)
	}
	if *fftSize != 0 {
		cfg.DSP.FFTSize = *fftSize
	}
	cfg.Logging.Debug = debugMode
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	rec, err := NewRecorder(cfg.Recording)
	if err != nil {
		log.Fatalf("failed to initialize recorder: %v", err)
	}

	mqttPub, err := NewMQTTPublisher(cfg.MQTT)
	if err != nil {
		log.Printf("mqtt publisher disabled: %v", err)
	}
	defer mqttPub.Close()

	metrics := NewMetrics()
	hub := NewHub()

	coord, err := NewCoordinator(*cfg, hub, rec, mqttPub, metrics)
	if err != nil {
		log.Fatalf("failed to initialize coordinator: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := coord.Start(ctx); err != nil {
		log.Fatalf("failed to start capture: %v", err)
	}

	server := NewServer(coord, hub, cfg.Server)
	mux := http.NewServeMux()
	mux.Handle("/ws", server.Handler())

	if cfg.MCP.Enabled {
		mcpTools := NewMCPTools(coord)
		mcpMux := http.NewServeMux()
		mcpMux.HandleFunc("/mcp", mcpTools.ServeHTTP)
		go serveAndLog(cfg.MCP.Listen, mcpMux, "mcp")
	}

	if cfg.Prometheus.Enabled {
		promMux := http.NewServeMux()
		promMux.Handle("/metrics", metrics.Handler())
		go serveAndLog(cfg.Prometheus.Listen, promMux, "prometheus")
	}

	printer := message.NewPrinter(language.English)
	printer.Printf("spectrumd: device %s, sample rate %d Hz, FFT size %d, center %d Hz\n",
		cfg.Device.Kind, cfg.Device.SampleRate, cfg.DSP.FFTSize, cfg.Device.CenterHz)

	httpServer := &http.Server{Addr: cfg.Server.Listen, Handler: mux}
	go func() {
		log.Printf("spectrumd listening on %s", cfg.Server.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")
	coord.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}

func serveAndLog(addr string, handler http.Handler, name string) {
	log.Printf("%s listening on %s", name, addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Printf("%s server error: %v", name, err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}
