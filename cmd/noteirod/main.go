package main

import (
	"context"
	"net/http"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/brln/noteiro/internal"
	"github.com/brln/noteiro/internal/api"
	"github.com/brln/noteiro/internal/lnbits"
	"github.com/brln/noteiro/internal/pulse"
	"github.com/brln/noteiro/internal/session"
	"github.com/brln/noteiro/internal/withdraw"
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
	defer withRecovery()

	if err := internal.LoadConfig("config.yaml"); err != nil {
		log.Fatalf("could not load configuration: %v", err)
	}
	internal.CheckLnbitsConfiguration()

	decoder := pulse.NewDecoder(internal.DenominationTable())
	ledger := session.NewLedger(decoder)
	client := lnbits.NewClient(internal.Configuration.Lnbits.ApiKey, internal.Configuration.Lnbits.Url)
	settlement := withdraw.NewService(ledger, client,
		decimal.NewFromInt(internal.Configuration.Lnbits.SatsPerUnit))

	server := api.NewServer(internal.Configuration.Api.ListenAddress)
	api.NewService(ledger, settlement, internal.Configuration.Api.AuthKey).Register(server)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[noteirod] server failed: %v", err)
		}
	}()
	log.Infof("[noteirod] lnbits: %s", internal.Configuration.Lnbits.Url)
	log.Infof("[noteirod] rate: 1 BRL = %d sat", internal.Configuration.Lnbits.SatsPerUnit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("[noteirod] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("[noteirod] shutdown: %v", err)
	}
}

func withRecovery() {
	if r := recover(); r != nil {
		log.Errorln("Recovered panic: ", r)
		debug.PrintStack()
	}
}
