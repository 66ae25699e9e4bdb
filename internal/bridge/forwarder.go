package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// CreditResponse is the ledger's answer to a forwarded pulse event.
type CreditResponse struct {
	Success       bool            `json:"success"`
	ValueCredited decimal.Decimal `json:"valueCredited"`
	NewBalance    decimal.Decimal `json:"newBalance"`
}

// ForwardResult reports the outcome of one forwarded credit event. The
// bridge itself drops failed events; a host wanting queue-and-retry can
// consume Results instead.
type ForwardResult struct {
	Pulses   int
	Source   string
	Err      error
	Response *CreditResponse
}

// Forwarder posts decoded credit events to the ledger API. Calls are
// fire-and-forget with a bounded timeout: a failure is logged, published on
// the results channel, and the event is gone.
type Forwarder struct {
	client   *http.Client
	endpoint string
	results  chan ForwardResult
}

func NewForwarder(apiURL string, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Forwarder{
		client:   &http.Client{Timeout: timeout},
		endpoint: apiURL + "/api/pulses",
		results:  make(chan ForwardResult, 64),
	}
}

// Results exposes forwarding outcomes. The channel is never closed and the
// publisher never blocks on it; slow consumers miss results rather than
// stalling the serial loop.
func (f *Forwarder) Results() <-chan ForwardResult {
	return f.results
}

// Submit forwards one credit event carrying only the pulse count.
func (f *Forwarder) Submit(pulses int, source string) {
	result := ForwardResult{Pulses: pulses, Source: source}
	defer f.publish(&result)

	payload, _ := json.Marshal(map[string]int{"pulses": pulses})
	resp, err := f.client.Post(f.endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		result.Err = err
		log.Errorf("[bridge] could not forward %d pulses (%s): %v", pulses, source, err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		result.Err = fmt.Errorf("ledger rejected %d pulses: status %d: %s",
			pulses, resp.StatusCode, string(body))
		log.Errorf("[bridge] %v", result.Err)
		return
	}

	var credit CreditResponse
	if err := json.Unmarshal(body, &credit); err != nil {
		result.Err = err
		log.Errorf("[bridge] could not decode ledger response: %v", err)
		return
	}
	result.Response = &credit
	log.Infof("[bridge] ledger confirmed R$ %s, balance R$ %s",
		credit.ValueCredited.StringFixed(2), credit.NewBalance.StringFixed(2))
}

func (f *Forwarder) publish(result *ForwardResult) {
	select {
	case f.results <- *result:
	default:
	}
}
