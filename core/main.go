package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reliachan/pkg/clock"
	"reliachan/pkg/config"
	"reliachan/pkg/logger"
	"reliachan/pkg/memory"
	"reliachan/source/dispatch"
)

const (
	VERSION = "1.0.0"
)

func main() {
	logger.Banner("Reliability Channel Layer", VERSION)

	cfg := loadConfig()
	channelCfg := config.Default()

	addr := &net.UDPAddr{IP: net.ParseIP(cfg.Host), Port: cfg.Port}
	sock, err := net.ListenUDP("udp", addr)
	if err != nil {
		logger.Fatal("failed to bind UDP socket: %v", err)
	}
	defer sock.Close()

	logger.Info("Server Version: %s", VERSION)
	logger.Info("Listening on %s:%d", cfg.Host, cfg.Port)
	logger.Info("Window size: %d, max resend attempts: %d, resend extra delay: %s",
		channelCfg.Reliability.WindowSize, channelCfg.Reliability.MaxResendAttempts, channelCfg.Reliability.ResendExtraDelay)
	logger.Success("Configuration loaded successfully")

	layout := dispatch.Layout{
		0: dispatch.KindReliable,
		1: dispatch.KindSequenced,
		2: dispatch.KindUnreliable,
	}

	d := dispatch.New(sock, memory.NewPooledManager(), clock.Real{}, channelCfg, layout, onMessage)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := d.Listen(ctx); err != nil && ctx.Err() == nil {
			errChan <- err
		}
	}()
	go d.Tick(ctx, 50*time.Millisecond)
	go cleanupLoop(ctx, d, 5*time.Second, 30*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errChan:
		logger.Fatal("dispatch error: %v", err)
	case sig := <-sigChan:
		logger.Warn("received signal: %v", sig)
		logger.Info("shutting down gracefully...")
		cancel()
		time.Sleep(100 * time.Millisecond)
		logger.Success("server stopped")
	}
}

func onMessage(peer *net.UDPAddr, channelID byte, payload []byte) {
	logger.Info("delivered %d bytes from %s on channel %d", len(payload), peer.String(), channelID)
}

func cleanupLoop(ctx context.Context, d *dispatch.Dispatcher, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.CleanupStale(maxIdle)
		}
	}
}

type serverConfig struct {
	Host string
	Port int
}

func loadConfig() serverConfig {
	return serverConfig{
		Host: "0.0.0.0",
		Port: 7777,
	}
}
