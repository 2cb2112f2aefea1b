package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vkorhonen/h1bridge/internal/bridge"
	"github.com/vkorhonen/h1bridge/internal/codec"
	"github.com/vkorhonen/h1bridge/internal/config"
	"github.com/vkorhonen/h1bridge/internal/device"
	"github.com/vkorhonen/h1bridge/internal/logging"
	"github.com/vkorhonen/h1bridge/internal/messaging"
	"github.com/vkorhonen/h1bridge/internal/metrics"
	"github.com/vkorhonen/h1bridge/internal/poller"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config error", "error", err)
	}

	logging.Info("Loaded config",
		"deviceId", cfg.DeviceID,
		"inverter", cfg.InverterTarget(),
		"pollMs", cfg.PollIntervalMs,
	)

	// Graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsAddr != "" {
		go metrics.Serve(cfg.MetricsAddr)
	}

	link := device.NewLink(cfg.InverterTarget(), cfg.InverterUnitID, cfg.InverterTimeout())
	p := poller.New(link, codec.DefaultBlocks(), cfg.PollInterval())

	var br *bridge.Bridge
	availabilityTopic := cfg.TopicPrefix + "/" + cfg.DeviceID + "/bridge/state"
	broker := messaging.NewMsgBroker(messaging.BrokerConfig{
		BrokerURL:        cfg.MQTTURL,
		ClientName:       "h1bridge-" + cfg.DeviceID,
		Username:         cfg.MQTTUsername,
		Password:         cfg.MQTTPassword,
		ConnectTimeout:   10 * time.Second,
		PublishTimeout:   5 * time.Second,
		SubscribeTimeout: 5 * time.Second,
		WillTopic:        availabilityTopic,
		WillPayload:      "offline",
		OnConnect: func() {
			if br != nil {
				if err := br.PublishOnline(ctx); err != nil {
					logging.Warn("Failed to publish availability", "error", err)
				}
			}
		},
	})

	br = bridge.New(broker, codec.DefaultTable(), codec.DefaultBlocks(), p,
		cfg.DeviceID, cfg.TopicPrefix, cfg.PollInterval())

	if err := broker.Connect(ctx); err != nil {
		logging.Error("MQTT connect failed, auto-reconnect will keep trying", "error", err)
	}
	defer broker.Close(ctx)

	if err := br.Start(ctx); err != nil {
		logging.Error("Command subscription failed", "error", err)
	}
	p.OnData(br.OnSnapshot)

	go p.Run(ctx)

	// Wait for SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	logging.Info("Shutting down", "signal", s)

	// Give the poll loop a moment to exit cleanly (it honors ctx)
	cancel()
	time.Sleep(200 * time.Millisecond)
	logging.Info("bye")
}
