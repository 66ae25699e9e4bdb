package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/brln/noteiro/internal/errors"
	"github.com/brln/noteiro/internal/session"
	"github.com/brln/noteiro/internal/withdraw"
)

// Service exposes the ledger and the withdrawal settlement over HTTP. This
// is the ingestion boundary the serial bridge posts into.
type Service struct {
	ledger    *session.Ledger
	withdraws *withdraw.Service
	authKey   string
}

func NewService(ledger *session.Ledger, withdraws *withdraw.Service, authKey string) *Service {
	return &Service{ledger: ledger, withdraws: withdraws, authKey: authKey}
}

func (s *Service) Register(server *Server) {
	server.AppendRoute("/api/pulses", s.PostPulses, http.MethodPost)
	server.AppendRoute("/api/session", s.GetSession, http.MethodGet)
	server.AppendRoute("/api/reset", BearerAuthMiddleware(s.authKey, s.PostReset), http.MethodPost)
	server.AppendRoute("/api/withdraw", BearerAuthMiddleware(s.authKey, s.PostWithdraw), http.MethodPost)
	server.AppendRoute("/api/withdraw/{id}/status", s.GetWithdrawStatus, http.MethodGet)
	server.AppendRoute("/api/withdraw/{id}/qr", s.GetWithdrawQR, http.MethodGet)
	server.AppendRoute("/api/withdraws", s.GetWithdraws, http.MethodGet)
	server.AppendRoute("/health", s.GetHealth, http.MethodGet)
}

type pulsesRequest struct {
	Pulses *int `json:"pulses"`
}

func (s *Service) PostPulses(w http.ResponseWriter, r *http.Request) {
	var body pulsesRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Pulses == nil || *body.Pulses <= 0 {
		writeError(w, errors.New(errors.InvalidRequestError,
			stderrors.New("pulses must be a positive integer")))
		return
	}
	value, snap, err := s.ledger.Credit(*body.Pulses)
	if err != nil {
		writeError(w, err)
		return
	}
	WriteResponse(w, map[string]interface{}{
		"success":       true,
		"valueCredited": value,
		"newBalance":    snap.Balance,
		"notes":         snap.Notes,
	})
}

func (s *Service) GetSession(w http.ResponseWriter, r *http.Request) {
	WriteResponse(w, s.ledger.Snapshot())
}

func (s *Service) PostReset(w http.ResponseWriter, r *http.Request) {
	s.ledger.Reset()
	WriteResponse(w, map[string]interface{}{
		"success": true,
		"message": "session reset",
	})
}

type withdrawRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Service) PostWithdraw(w http.ResponseWriter, r *http.Request) {
	var body withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.New(errors.InvalidRequestError,
			stderrors.New("amount must be a number")))
		return
	}
	result, err := s.withdraws.CreateWithdrawal(body.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	WriteResponse(w, map[string]interface{}{
		"success":         true,
		"claimId":         result.ClaimID,
		"claimUrl":        result.ClaimURL,
		"lnurl":           result.Lnurl,
		"requestedAmount": result.RequestedAmount,
		"networkAmount":   result.NetworkAmount,
		"newBalance":      result.NewBalance,
	})
}

func (s *Service) GetWithdrawStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	status, err := s.withdraws.CheckStatus(id)
	if err != nil {
		writeError(w, err)
		return
	}
	WriteResponse(w, map[string]interface{}{
		"success":   true,
		"used":      status.Used,
		"usedCount": status.UsedCount,
		"maxUses":   status.MaxUses,
	})
}

func (s *Service) GetWithdrawQR(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	claim, ok := s.withdraws.Claim(id)
	if !ok || claim.Lnurl == "" {
		http.Error(w, "404 page not found", http.StatusNotFound)
		return
	}
	png, err := qrcode.Encode(claim.Lnurl, qrcode.Medium, 256)
	if err != nil {
		log.Errorln(err)
		http.Error(w, "could not render qr code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func (s *Service) GetWithdraws(w http.ResponseWriter, r *http.Request) {
	WriteResponse(w, s.withdraws.Recent())
}

func (s *Service) GetHealth(w http.ResponseWriter, r *http.Request) {
	WriteResponse(w, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// writeError renders an AtmError as a structured response: the message, the
// machine-readable code, and any detail fields flattened alongside.
func writeError(w http.ResponseWriter, err error) {
	var atmErr errors.AtmError
	if !stderrors.As(err, &atmErr) {
		atmErr = errors.New(errors.UnknownError, err)
	}

	status := http.StatusInternalServerError
	switch atmErr.Code {
	case errors.InvalidRequestError, errors.UnrecognizedPulseCountError,
		errors.InvalidAmountError, errors.InsufficientBalanceError:
		status = http.StatusBadRequest
	case errors.SettlementBackendError:
		status = http.StatusBadGateway
	}

	body := map[string]interface{}{
		"error": atmErr.Message,
		"code":  atmErr.Code,
	}
	for k, v := range atmErr.Detail {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
