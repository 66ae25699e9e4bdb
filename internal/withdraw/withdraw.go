// Package withdraw settles session balances into single-use Lightning
// withdraw links minted on the lnbits backend.
package withdraw

import (
	"fmt"
	"sort"
	"time"

	"github.com/eko/gocache/store"
	lnurl "github.com/fiatjaf/go-lnurl"
	cmap "github.com/orcaman/concurrent-map"
	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/brln/noteiro/internal/errors"
	"github.com/brln/noteiro/internal/lnbits"
	"github.com/brln/noteiro/internal/session"
)

const statusCacheExpiration = 5 * time.Second

// Backend is the slice of the lnbits client the settlement needs. The
// backend owns the claim lifecycle; we only mint and poll.
type Backend interface {
	CreateWithdrawLink(params lnbits.WithdrawLinkParams) (lnbits.WithdrawLink, error)
	GetWithdrawLink(id string) (lnbits.WithdrawLink, error)
	WithdrawURL(id string) string
}

// Withdrawal is a minted claim as returned to the caller.
type Withdrawal struct {
	ClaimID         string          `json:"claimId"`
	ClaimURL        string          `json:"claimUrl"`
	Lnurl           string          `json:"lnurl"`
	RequestedAmount decimal.Decimal `json:"requestedAmount"`
	NetworkAmount   int64           `json:"networkAmount"`
	NewBalance      decimal.Decimal `json:"newBalance"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Status reflects the backend's view of a claim.
type Status struct {
	Used      bool `json:"used"`
	UsedCount int  `json:"usedCount"`
	MaxUses   int  `json:"maxUses"`
}

type Service struct {
	ledger  *session.Ledger
	backend Backend
	rate    decimal.Decimal // satoshi per unit of fiat
	claims  cmap.ConcurrentMap
	cache   *store.GoCacheStore
}

func NewService(ledger *session.Ledger, backend Backend, satsPerUnit decimal.Decimal) *Service {
	return &Service{
		ledger:  ledger,
		backend: backend,
		rate:    satsPerUnit,
		claims:  cmap.New(),
		cache:   store.NewGoCache(gocache.New(statusCacheExpiration, time.Minute), nil),
	}
}

// CreateWithdrawal mints a single-use, exact-amount withdraw link for the
// requested fiat amount and debits the session. The mint happens before the
// debit: if a racing withdrawal empties the balance in between, the claim is
// already issued and stays un-debited. That gap is accepted; it is logged so
// an operator can void the link on the backend.
func (s *Service) CreateWithdrawal(amount decimal.Decimal) (Withdrawal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return Withdrawal{}, errors.New(errors.InvalidAmountError,
			fmt.Errorf("invalid withdrawal amount: %s", amount.String()))
	}

	snap := s.ledger.Snapshot()
	if amount.GreaterThan(snap.Balance) {
		return Withdrawal{}, errors.New(errors.InsufficientBalanceError,
			fmt.Errorf("insufficient balance: available R$ %s, requested R$ %s",
				snap.Balance.StringFixed(2), amount.StringFixed(2))).
			WithDetail("available", snap.Balance.StringFixed(2)).
			WithDetail("requested", amount.StringFixed(2))
	}

	sats := amount.Mul(s.rate).IntPart()
	log.Infof("[withdraw] minting link: R$ %s (%d sat)", amount.StringFixed(2), sats)

	link, err := s.backend.CreateWithdrawLink(lnbits.WithdrawLinkParams{
		Title:           fmt.Sprintf("Saque ATM - R$ %s", amount.StringFixed(2)),
		MinWithdrawable: sats,
		MaxWithdrawable: sats,
		Uses:            1,
		WaitTime:        1,
		IsUnique:        true,
	})
	if err != nil {
		return Withdrawal{}, backendError("could not create withdraw link", err)
	}

	encoded := link.Lnurl
	if encoded == "" {
		// older withdraw extensions omit the bech32 form
		encoded, err = lnurl.LNURLEncode(s.backend.WithdrawURL(link.ID))
		if err != nil {
			log.Warnf("[withdraw] could not encode lnurl for %s: %v", link.ID, err)
		}
	}

	newBalance, err := s.ledger.Debit(amount)
	if err != nil {
		log.Warnf("[withdraw] claim %s minted but debit failed, link is live and un-debited: %v",
			link.ID, err)
		return Withdrawal{}, err
	}

	w := Withdrawal{
		ClaimID:         link.ID,
		ClaimURL:        s.backend.WithdrawURL(link.ID),
		Lnurl:           encoded,
		RequestedAmount: amount,
		NetworkAmount:   sats,
		NewBalance:      newBalance,
		CreatedAt:       time.Now(),
	}
	s.claims.Set(link.ID, w)
	log.Infof("[withdraw] link %s minted, balance R$ %s", link.ID, newBalance.StringFixed(2))
	return w, nil
}

// CheckStatus polls the backend for a claim's used/uses counters. Responses
// are cached briefly so a polling UI does not hammer the backend.
func (s *Service) CheckStatus(claimID string) (Status, error) {
	if cached, err := s.cache.Get(claimID); err == nil {
		if status, ok := cached.(Status); ok {
			return status, nil
		}
	}
	link, err := s.backend.GetWithdrawLink(claimID)
	if err != nil {
		return Status{}, backendError("could not check withdraw status", err)
	}
	status := Status{
		Used:      link.Used >= link.Uses,
		UsedCount: link.Used,
		MaxUses:   link.Uses,
	}
	s.cache.Set(claimID, status, &store.Options{Expiration: statusCacheExpiration})
	return status, nil
}

// Claim returns a locally tracked minted claim.
func (s *Service) Claim(claimID string) (Withdrawal, bool) {
	if v, ok := s.claims.Get(claimID); ok {
		return v.(Withdrawal), true
	}
	return Withdrawal{}, false
}

// Recent lists claims minted by this process, newest first.
func (s *Service) Recent() []Withdrawal {
	items := s.claims.Items()
	out := make([]Withdrawal, 0, len(items))
	for _, v := range items {
		out = append(out, v.(Withdrawal))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func backendError(msg string, err error) errors.AtmError {
	atmErr := errors.New(errors.SettlementBackendError, fmt.Errorf("%s: %w", msg, err))
	if lnErr, ok := err.(lnbits.Error); ok {
		detail := lnErr.Detail
		if detail == "" {
			detail = lnErr.Message
		}
		atmErr = atmErr.WithDetail("backend", detail)
	}
	return atmErr
}
