// Package bridge owns the serial connection to the banknote acceptor and
// turns its line-oriented output into credit events posted to the ledger
// API. Two line protocols co-exist: structured JSON records framed by
// sentinel lines, and the firmware's legacy free-text credit notices. The
// bridge reconnects forever on failure.
package bridge

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/brln/noteiro/internal/pulse"
)

// State of the serial connection.
type State int

const (
	StateDisconnected State = iota
	StateOpening
	StateConnected
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateOpening:
		return "opening"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

const (
	envelopeStart = "JSON_START"
	envelopeEnd   = "JSON_END"
	legacyMarker  = "CRÉDITO IDENTIFICADO"
)

// legacyAmount extracts the amount from "CRÉDITO IDENTIFICADO: R$ X.XX".
var legacyAmount = regexp.MustCompile(`R\$\s*([\d,]+\.?\d*)`)

// Opener opens the physical connection. Abstracted so tests can feed a
// scripted stream instead of a serial port.
type Opener func() (io.ReadCloser, error)

type Bridge struct {
	opener         Opener
	forwarder      *Forwarder
	decoder        *pulse.Decoder
	reconnectDelay time.Duration

	mu               sync.Mutex
	state            State
	envelopeMode     bool
	reconnectPending bool
}

func New(opener Opener, forwarder *Forwarder, decoder *pulse.Decoder, reconnectDelay time.Duration) *Bridge {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if decoder == nil {
		decoder = pulse.NewDecoder(nil)
	}
	return &Bridge{
		opener:         opener,
		forwarder:      forwarder,
		decoder:        decoder,
		reconnectDelay: reconnectDelay,
		state:          StateDisconnected,
	}
}

// State returns the current connection state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	prev := b.state
	b.state = s
	b.mu.Unlock()
	if prev != s {
		log.Infof("[bridge] %s -> %s", prev, s)
	}
}

// Run drives the connection until ctx is canceled: open, read lines,
// reconnect after a fixed delay on any error or close. Retries forever; the
// delay does not grow. Returns once the connection is released.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		b.setState(StateOpening)
		port, err := b.opener()
		if err != nil {
			log.Errorf("[bridge] could not open port: %v", err)
			b.setState(StateError)
			if !b.waitReconnect(ctx) {
				b.setState(StateClosed)
				return ctx.Err()
			}
			continue
		}
		b.setState(StateConnected)
		b.mu.Lock()
		b.envelopeMode = false
		b.mu.Unlock()

		// closing the port on cancellation unblocks the scanner
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				port.Close()
			case <-done:
			}
		}()

		scanner := bufio.NewScanner(port)
		for scanner.Scan() {
			b.processLine(strings.TrimSpace(scanner.Text()))
		}
		close(done)
		port.Close()

		if ctx.Err() != nil {
			b.setState(StateClosed)
			return ctx.Err()
		}
		if err := scanner.Err(); err != nil {
			log.Errorf("[bridge] connection failure: %v", err)
			b.setState(StateError)
		} else {
			log.Warn("[bridge] port closed")
			b.setState(StateClosed)
		}
		b.setState(StateDisconnected)
		if !b.waitReconnect(ctx) {
			b.setState(StateClosed)
			return ctx.Err()
		}
	}
}

// waitReconnect sleeps the fixed reconnect delay. Only one wait may be
// pending at a time; a second caller returns immediately without scheduling
// another attempt. Returns false if the context was canceled while waiting.
func (b *Bridge) waitReconnect(ctx context.Context) bool {
	b.mu.Lock()
	if b.reconnectPending {
		b.mu.Unlock()
		return false
	}
	b.reconnectPending = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.reconnectPending = false
		b.mu.Unlock()
	}()

	log.Infof("[bridge] reconnecting in %s", b.reconnectDelay)
	select {
	case <-time.After(b.reconnectDelay):
		return true
	case <-ctx.Done():
		return false
	}
}

// processLine handles one decoded text line. The sentinel lines only toggle
// envelope mode. Envelope records and legacy notices are independent: both
// protocols may fire for the same line, and no deduplication is performed —
// firmware emitting both forms for one physical note double-counts.
func (b *Bridge) processLine(line string) {
	if line == "" {
		return
	}
	log.Debugf("[bridge] recv: %s", line)

	switch line {
	case envelopeStart:
		b.setEnvelopeMode(true)
		return
	case envelopeEnd:
		b.setEnvelopeMode(false)
		return
	}

	if b.inEnvelopeMode() {
		b.handleEnvelope(line)
	}
	if strings.Contains(line, legacyMarker) {
		b.handleLegacy(line)
	}
}

func (b *Bridge) setEnvelopeMode(on bool) {
	b.mu.Lock()
	b.envelopeMode = on
	b.mu.Unlock()
	log.Debugf("[bridge] envelope mode: %v", on)
}

func (b *Bridge) inEnvelopeMode() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.envelopeMode
}

// handleEnvelope parses one self-contained JSON record. A bad record is
// logged and dropped; envelope mode stays on.
func (b *Bridge) handleEnvelope(line string) {
	if !gjson.Valid(line) {
		log.Errorf("[bridge] malformed envelope record: %s", line)
		return
	}
	// pulsos is the field name the acceptor firmware emits
	pulses := gjson.Get(line, "pulsos")
	if !pulses.Exists() || pulses.Type != gjson.Number || pulses.Int() <= 0 {
		log.Errorf("[bridge] envelope record without usable pulse count: %s", line)
		return
	}
	b.forwarder.Submit(int(pulses.Int()), "envelope")
}

// handleLegacy extracts the amount from a free-text credit notice and maps
// it back to a pulse count via the denomination table.
func (b *Bridge) handleLegacy(line string) {
	m := legacyAmount.FindStringSubmatch(line)
	if m == nil {
		log.Errorf("[bridge] credit notice without amount: %s", line)
		return
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "."))
	if err != nil {
		log.Errorf("[bridge] could not parse amount %q: %v", m[1], err)
		return
	}
	pulses := b.decoder.PulsesForAmount(amount)
	log.Infof("[bridge] note detected: R$ %s (%d pulses)", amount.StringFixed(2), pulses)
	b.forwarder.Submit(pulses, "legacy")
}
