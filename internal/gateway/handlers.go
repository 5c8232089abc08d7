package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"deposit-bridge-go/internal/ledger"
	"deposit-bridge-go/internal/models"
	"deposit-bridge-go/internal/store"
)

type registerUserRequest struct {
	WalletAddress string `json:"wallet_address"`
}

type queryRequest struct {
	UserId string `json:"user_id"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !ethcommon.IsHexAddress(req.WalletAddress) {
		writeError(w, http.StatusBadRequest, "wallet_address is not a valid chain address")
		return
	}

	user, err := s.ledger.FindOrCreateUser(r.Context(), req.WalletAddress)
	if err != nil {
		zap.L().Error("User registration failed",
			zap.String("wallet_address", req.WalletAddress),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	user, err := s.ledger.GetUserByAddress(r.Context(), address)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "no user for address")
			return
		}
		zap.L().Error("Balance lookup failed", zap.String("address", address), zap.Error(err))
		writeError(w, http.StatusBadGateway, "store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, models.BalanceResponse{
		WalletAddress: user.WalletAddress,
		BalanceWei:    user.Account.BalanceWei.String(),
		Balance:       ledger.ToLedgerUnits(user.Account.BalanceWei),
		UpdatedAt:     user.Account.UpdatedAt,
	})
}

func (s *Server) handleListServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.listings.All())
}

// handleQuery is the metered-call flow: resolve the listing, debit its
// per-call price atomically and only then issue the request credential.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	serviceId := mux.Vars(r)["id"]

	svc, ok := s.listings.Get(serviceId)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown service")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	result := s.ledger.Debit(r.Context(), req.UserId, svc.PriceWei)
	switch result.Status {
	case models.DebitApplied:
		// fall through below
	case models.DebitInsufficientFunds:
		writeError(w, http.StatusPaymentRequired, "insufficient funds")
		return
	case models.DebitUserNotFound:
		writeError(w, http.StatusNotFound, "unknown user")
		return
	default:
		writeError(w, http.StatusBadGateway, "ledger unavailable")
		return
	}

	cred := s.creds.Issue(req.UserId, svc.Id)
	writeJSON(w, http.StatusOK, models.QueryResponse{
		Credential: cred,
		Endpoint:   svc.Endpoint,
		Charged:    ledger.ToLedgerUnits(svc.PriceWei),
		NewBalance: ledger.ToLedgerUnits(result.NewBalanceWei),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}
