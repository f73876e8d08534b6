package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"grantchain/core"
	"grantchain/core/genesis"
	"grantchain/core/state"
	"grantchain/crypto"
	"grantchain/native/allocations"
	"grantchain/native/bank"
	nativecommon "grantchain/native/common"
	"grantchain/native/grants"
	"grantchain/native/membership"
)

const maxCallBody = 64 << 10

// Submitter applies calls to the state machine.
type Submitter interface {
	Apply(ctx context.Context, call core.Call) error
}

type allocateRequest struct {
	Grantee string `json:"grantee"`
	Amount  string `json:"amount"`
	Proof   string `json:"proof"`
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type scheduleRequest struct {
	Grantee string             `json:"grantee"`
	Rules   []genesis.RuleSpec `json:"rules"`
}

type membersRequest struct {
	Role    string   `json:"role"`
	Members []string `json:"members"`
}

type blockRequest struct {
	Height uint64 `json:"height"`
}

type callResponse struct {
	Call   string `json:"call"`
	Status string `json:"status"`
}

func (s *Server) mountCalls(r chi.Router) {
	r.Post("/allocate", s.callHandler(decodeAllocate))
	r.Post("/transfer", s.callHandler(decodeTransfer))
	r.Post("/vested-transfer", s.callHandler(decodeVestedTransfer))
	r.Post("/schedules", s.callHandler(decodeSchedule))
	r.Post("/members", s.callHandler(decodeMembers))
	r.Post("/pauses", s.callHandler(decodePauses))
	r.Post("/block", s.callHandler(decodeBlock))
}

type callDecoder func(caller [20]byte, body *json.Decoder) (core.Call, error)

func (s *Server) callHandler(decode callDecoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing caller")
			return
		}
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCallBody))
		dec.DisallowUnknownFields()
		call, err := decode(caller, dec)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.submitter.Apply(r.Context(), call); err != nil {
			status := callErrorStatus(err)
			if status == http.StatusInternalServerError {
				s.internalError(w, r, err)
				return
			}
			writeError(w, status, err.Error())
			return
		}
		s.logger.Info("call applied", "call", call.Kind(), "caller", crypto.AccountString(caller), "request_id", r.Header.Get(requestIDHeader))
		writeJSON(w, http.StatusOK, callResponse{Call: call.Kind(), Status: "applied"})
	}
}

func callErrorStatus(err error) int {
	switch {
	case errors.Is(err, allocations.ErrNotAuthorized), errors.Is(err, membership.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, allocations.ErrCapExceeded),
		errors.Is(err, allocations.ErrProofTooLarge),
		errors.Is(err, allocations.ErrZeroAllocation),
		errors.Is(err, nativecommon.ErrArithmeticOverflow),
		errors.Is(err, grants.ErrInvalidSchedule),
		errors.Is(err, grants.ErrTooManySchedules),
		errors.Is(err, grants.ErrSelfVested),
		errors.Is(err, state.ErrHeightRegression),
		errors.Is(err, bank.ErrInsufficientFunds),
		errors.Is(err, bank.ErrLockedFunds),
		errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, membership.ErrUnknownRole):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func parseAmount(value string) (*uint256.Int, error) {
	amount, err := uint256.FromDecimal(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

func parseRules(specs []genesis.RuleSpec) ([]grants.Rule, error) {
	rules := make([]grants.Rule, 0, len(specs))
	for i, spec := range specs {
		rule, err := spec.Rule()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func decodeAllocate(caller [20]byte, dec *json.Decoder) (core.Call, error) {
	var req allocateRequest
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}
	grantee, err := crypto.ParseAccount(req.Grantee)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	proof, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(req.Proof), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid proof hex: %w", err)
	}
	return core.AllocateCall{Oracle: caller, Grantee: grantee, Amount: amount, Proof: proof}, nil
}

func decodeTransfer(caller [20]byte, dec *json.Decoder) (core.Call, error) {
	var req transferRequest
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}
	to, err := crypto.ParseAccount(req.To)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	return core.TransferCall{From: caller, To: to, Amount: amount}, nil
}

func decodeVestedTransfer(caller [20]byte, dec *json.Decoder) (core.Call, error) {
	var req scheduleRequest
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}
	to, err := crypto.ParseAccount(req.Grantee)
	if err != nil {
		return nil, err
	}
	rules, err := parseRules(req.Rules)
	if err != nil {
		return nil, err
	}
	return core.VestedTransferCall{From: caller, To: to, Rules: rules}, nil
}

func decodeSchedule(caller [20]byte, dec *json.Decoder) (core.Call, error) {
	var req scheduleRequest
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}
	grantee, err := crypto.ParseAccount(req.Grantee)
	if err != nil {
		return nil, err
	}
	rules, err := parseRules(req.Rules)
	if err != nil {
		return nil, err
	}
	return core.AddScheduleCall{Caller: caller, Grantee: grantee, Rules: rules}, nil
}

func decodeMembers(caller [20]byte, dec *json.Decoder) (core.Call, error) {
	var req membersRequest
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}
	role, err := membership.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	members := make([][20]byte, 0, len(req.Members))
	for _, member := range req.Members {
		account, err := crypto.ParseAccount(member)
		if err != nil {
			return nil, err
		}
		members = append(members, account)
	}
	return core.SetMembersCall{Caller: caller, Role: role, Members: members}, nil
}

func decodePauses(caller [20]byte, dec *json.Decoder) (core.Call, error) {
	var pauses nativecommon.Pauses
	if err := dec.Decode(&pauses); err != nil {
		return nil, err
	}
	return core.SetPausesCall{Caller: caller, Pauses: pauses}, nil
}

func decodeBlock(caller [20]byte, dec *json.Decoder) (core.Call, error) {
	var req blockRequest
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}
	return core.SetBlockCall{Caller: caller, Height: req.Height}, nil
}
