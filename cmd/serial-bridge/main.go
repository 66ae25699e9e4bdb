package main

import (
	"context"
	"syscall"
	"time"

	"github.com/oklog/run"
	log "github.com/sirupsen/logrus"

	"github.com/brln/noteiro/internal"
	"github.com/brln/noteiro/internal/bridge"
	"github.com/brln/noteiro/internal/pulse"
)

// setLogger will initialize the log format
func setLogger() {
	log.SetLevel(log.DebugLevel)
	customFormatter := new(log.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02 15:04:05"
	customFormatter.FullTimestamp = true
	log.SetFormatter(customFormatter)
}

func main() {
	setLogger()

	if err := internal.LoadConfig("config.yaml"); err != nil {
		log.Fatalf("could not load configuration: %v", err)
	}
	cfg := internal.Configuration.Serial

	log.Info("[serial-bridge] starting")
	log.Infof("[serial-bridge] port: %s (%d baud)", cfg.Device, cfg.BaudRate)
	log.Infof("[serial-bridge] api: %s", cfg.ApiUrl)
	bridge.ListPorts()

	decoder := pulse.NewDecoder(internal.DenominationTable())
	forwarder := bridge.NewForwarder(cfg.ApiUrl, time.Duration(cfg.ForwardTimeoutSeconds)*time.Second)
	b := bridge.New(
		bridge.SerialOpener(cfg.Device, cfg.BaudRate),
		forwarder,
		decoder,
		time.Duration(cfg.ReconnectDelaySeconds)*time.Second,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var g run.Group
	g.Add(func() error {
		return b.Run(ctx)
	}, func(error) {
		cancel()
	})
	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	if err := g.Run(); err != nil {
		log.Infof("[serial-bridge] stopped: %v", err)
	}
}
