// Package session holds the single live accumulation of credited value.
// The ledger is volatile by design: state lives in memory, one session per
// process, replaced wholesale on reset.
package session

import (
	"fmt"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/brln/noteiro/internal/errors"
	"github.com/brln/noteiro/internal/pulse"
)

// CreditedNote records one accepted banknote. Immutable once appended.
type CreditedNote struct {
	Pulses     int             `json:"pulses"`
	Value      decimal.Decimal `json:"value"`
	ObservedAt time.Time       `json:"observedAt"`
}

// Session is the running balance plus the ordered history of notes that
// produced it. Notes are append-only; insertion order is arrival order.
type Session struct {
	ID           string          `json:"id"`
	Balance      decimal.Decimal `json:"balance"`
	Notes        []CreditedNote  `json:"notes"`
	LastCreditAt *time.Time      `json:"lastCreditAt"`
}

// Ledger owns the live session. Credits and debits are serialized by one
// mutex so the sufficiency check inside Debit can never race a concurrent
// balance change.
type Ledger struct {
	mu      sync.Mutex
	decoder *pulse.Decoder
	session Session
}

func NewLedger(decoder *pulse.Decoder) *Ledger {
	if decoder == nil {
		decoder = pulse.NewDecoder(nil)
	}
	return &Ledger{
		decoder: decoder,
		session: newSession(),
	}
}

func newSession() Session {
	return Session{
		ID:      uuid.NewV4().String(),
		Balance: decimal.Zero,
		Notes:   []CreditedNote{},
	}
}

// Credit decodes a pulse count and applies the resulting note to the
// session. On decode failure the error propagates and the session is
// untouched. Returns the credited value and a snapshot of the session
// after the credit.
func (l *Ledger) Credit(pulses int) (decimal.Decimal, Session, error) {
	value, err := l.decoder.Decode(pulses)
	if err != nil {
		return decimal.Zero, Session{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.session.Notes = append(l.session.Notes, CreditedNote{
		Pulses:     pulses,
		Value:      value,
		ObservedAt: now,
	})
	l.session.Balance = l.session.Balance.Add(value)
	l.session.LastCreditAt = &now

	log.Infof("[ledger] note credited: R$ %s (%d pulses), balance R$ %s",
		value.StringFixed(2), pulses, l.session.Balance.StringFixed(2))
	return value, l.copySessionLocked(), nil
}

// Snapshot returns the current session by value.
func (l *Ledger) Snapshot() Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.copySessionLocked()
}

// Reset replaces the session with a fresh empty one. Prior notes are not
// archived anywhere.
func (l *Ledger) Reset() Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	old := l.session.ID
	l.session = newSession()
	log.Infof("[ledger] session reset: %s -> %s", old, l.session.ID)
	return l.copySessionLocked()
}

// Debit reduces the balance. It is the only operation that can, and the
// sufficiency check and the write happen under the same lock acquisition:
// two concurrent debits against a balance sufficient for only one cannot
// both pass.
func (l *Ledger) Debit(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, errors.New(errors.InvalidAmountError,
			fmt.Errorf("invalid debit amount: %s", amount.String()))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if amount.GreaterThan(l.session.Balance) {
		return l.session.Balance, errors.New(errors.InsufficientBalanceError,
			fmt.Errorf("insufficient balance: available R$ %s, requested R$ %s",
				l.session.Balance.StringFixed(2), amount.StringFixed(2))).
			WithDetail("available", l.session.Balance.StringFixed(2)).
			WithDetail("requested", amount.StringFixed(2))
	}
	l.session.Balance = l.session.Balance.Sub(amount)
	log.Infof("[ledger] debit R$ %s, balance R$ %s",
		amount.StringFixed(2), l.session.Balance.StringFixed(2))
	return l.session.Balance, nil
}

func (l *Ledger) copySessionLocked() Session {
	s := Session{
		ID:      l.session.ID,
		Balance: l.session.Balance,
		Notes:   make([]CreditedNote, len(l.session.Notes)),
	}
	copy(s.Notes, l.session.Notes)
	if l.session.LastCreditAt != nil {
		t := *l.session.LastCreditAt
		s.LastCreditAt = &t
	}
	return s
}
