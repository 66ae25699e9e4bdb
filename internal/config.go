package internal

import (
	"fmt"
	"os"
	"strings"

	"github.com/jinzhu/configor"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var Configuration = struct {
	Api    ApiConfiguration    `yaml:"api"`
	Lnbits LnbitsConfiguration `yaml:"lnbits"`
	Serial SerialConfiguration `yaml:"serial"`

	// Denominations overrides the acceptor's pulse table: pulse count to
	// note value. Empty means the factory table.
	Denominations map[int]float64 `yaml:"denominations"`
}{}

type ApiConfiguration struct {
	ListenAddress string `yaml:"listen_address" default:"0.0.0.0:3001" env:"NOTEIRO_LISTEN_ADDRESS"`
	AuthKey       string `yaml:"auth_key" env:"NOTEIRO_API_AUTH_KEY"`
}

type LnbitsConfiguration struct {
	Url         string `yaml:"url" env:"LNBITS_URL"`
	ApiKey      string `yaml:"api_key" env:"LNBITS_API_KEY"`
	SatsPerUnit int64  `yaml:"sats_per_unit" default:"300" env:"BRL_TO_SATS"`
}

type SerialConfiguration struct {
	Device                string `yaml:"device" default:"/dev/ttyUSB0" env:"SERIAL_PORT"`
	BaudRate              int    `yaml:"baud_rate" default:"115200"`
	ApiUrl                string `yaml:"api_url" default:"http://localhost:3001" env:"API_URL"`
	ForwardTimeoutSeconds int    `yaml:"forward_timeout_seconds" default:"5"`
	ReconnectDelaySeconds int    `yaml:"reconnect_delay_seconds" default:"5"`
}

// LoadConfig fills Configuration from the yaml file at path (if present),
// environment variables and defaults. Called from the binaries, not init,
// so packages stay importable without a config file on disk.
func LoadConfig(path string) error {
	loader := configor.New(&configor.Config{ENVPrefix: "-"})
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return loader.Load(&Configuration, path)
		}
		log.Warnf("config file %s not found, using defaults and environment", path)
	}
	return loader.Load(&Configuration)
}

// CheckLnbitsConfiguration validates backend settings for the API service.
func CheckLnbitsConfiguration() {
	if Configuration.Lnbits.Url == "" {
		panic(fmt.Errorf("please configure a lnbits url"))
	}
	Configuration.Lnbits.Url = strings.TrimSuffix(Configuration.Lnbits.Url, "/")
	if Configuration.Lnbits.ApiKey == "" {
		panic(fmt.Errorf("please configure a lnbits api key"))
	}
	if Configuration.Lnbits.SatsPerUnit <= 0 {
		panic(fmt.Errorf("sats_per_unit must be positive"))
	}
}

// DenominationTable converts the configured overrides into decoder form.
// Returns nil when no override is configured.
func DenominationTable() map[int]decimal.Decimal {
	if len(Configuration.Denominations) == 0 {
		return nil
	}
	table := make(map[int]decimal.Decimal, len(Configuration.Denominations))
	for pulses, value := range Configuration.Denominations {
		table[pulses] = decimal.NewFromFloat(value)
	}
	return table
}
