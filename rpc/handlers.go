package rpc

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"grantchain/crypto"
	"grantchain/native/allocations"
	"grantchain/native/grants"
	"grantchain/native/membership"
)

type healthResponse struct {
	Status string `json:"status"`
	Height uint64 `json:"height"`
}

type allocationStatsResponse struct {
	Consumed      string `json:"consumed"`
	Max           string `json:"max"`
	Remaining     string `json:"remaining"`
	MaxProofBytes uint32 `json:"maxProofBytes"`
	Count         uint64 `json:"count"`
}

type allocationResponse struct {
	Seq     uint64 `json:"seq"`
	Oracle  string `json:"oracle"`
	Grantee string `json:"grantee"`
	Amount  string `json:"amount"`
	Proof   string `json:"proof"`
	Height  uint64 `json:"height"`
}

type membersResponse struct {
	Role    string   `json:"role"`
	Members []string `json:"members"`
}

type accountResponse struct {
	Address      string `json:"address"`
	Balance      string `json:"balance"`
	Locked       string `json:"locked"`
	Transferable string `json:"transferable"`
	Height       uint64 `json:"height"`
}

type ruleResponse struct {
	Start         uint64  `json:"start"`
	Cliff         string  `json:"cliff"`
	Period        uint64  `json:"period"`
	PeriodCount   uint32  `json:"periodCount"`
	PerPeriod     string  `json:"perPeriod"`
	FullyVestedAt *uint64 `json:"fullyVestedAt"`
}

type grantResponse struct {
	Address string         `json:"address"`
	At      uint64         `json:"at"`
	Total   string         `json:"total"`
	Locked  string         `json:"locked"`
	Rules   []ruleResponse `json:"rules"`
}

type auditAllocationResponse struct {
	Seq       uint64 `json:"seq"`
	Oracle    string `json:"oracle"`
	Amount    string `json:"amount"`
	ProofHash string `json:"proofHash"`
	Height    uint64 `json:"height"`
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("query failed", "path", r.URL.Path, "error", err, "request_id", r.Header.Get(requestIDHeader))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	height, err := s.ledger.Height()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Height: height})
}

func (s *Server) handleAllocationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.AllocationStats()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, allocationStatsResponse{
		Consumed:      dec(stats.Consumed),
		Max:           dec(stats.Max),
		Remaining:     dec(stats.Remaining),
		MaxProofBytes: stats.MaxProofBytes,
		Count:         stats.Count,
	})
}

func (s *Server) handleAllocation(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseUint(chi.URLParam(r, "seq"), 10, 64)
	if err != nil || seq == 0 {
		writeError(w, http.StatusBadRequest, "seq must be a positive integer")
		return
	}
	record, err := s.ledger.Allocation(seq)
	if errors.Is(err, allocations.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "allocation not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, allocationResponse{
		Seq:     record.Seq,
		Oracle:  crypto.AccountString(record.Oracle),
		Grantee: crypto.AccountString(record.Grantee),
		Amount:  dec(record.Amount),
		Proof:   "0x" + hex.EncodeToString(record.Proof),
		Height:  record.Height,
	})
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	role, err := membership.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	members, err := s.ledger.Members(role)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	resp := membersResponse{Role: role.String(), Members: make([]string, 0, len(members))}
	for _, member := range members {
		resp.Members = append(resp.Members, crypto.AccountString(member))
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseAddressParam(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	account, err := crypto.ParseAccount(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return [20]byte{}, false
	}
	return account, true
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddressParam(w, r)
	if !ok {
		return
	}
	view, err := s.ledger.Account(account)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		Address:      crypto.AccountString(account),
		Balance:      dec(view.Balance),
		Locked:       dec(view.Locked),
		Transferable: dec(view.Transferable),
		Height:       view.Height,
	})
}

func (s *Server) handleGrantees(w http.ResponseWriter, r *http.Request) {
	grantees, err := s.ledger.Grantees()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]string, 0, len(grantees))
	for _, grantee := range grantees {
		out = append(out, crypto.AccountString(grantee))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddressParam(w, r)
	if !ok {
		return
	}
	var at *uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("height")); raw != "" {
		height, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "height must be an unsigned integer")
			return
		}
		at = &height
	}
	view, err := s.ledger.Grant(account, at)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	resp := grantResponse{
		Address: crypto.AccountString(account),
		At:      view.At,
		Total:   dec(view.Total),
		Locked:  dec(view.Locked),
		Rules:   make([]ruleResponse, 0, len(view.Rules)),
	}
	for _, rule := range view.Rules {
		resp.Rules = append(resp.Rules, ruleView(rule))
	}
	writeJSON(w, http.StatusOK, resp)
}

func ruleView(rule grants.Rule) ruleResponse {
	resp := ruleResponse{
		Start:       rule.Start,
		Cliff:       dec(rule.Cliff),
		Period:      rule.Period,
		PeriodCount: rule.PeriodCount,
		PerPeriod:   dec(rule.PerPeriod),
	}
	if at, ok := rule.FullyVestedAt(); ok {
		resp.FullyVestedAt = &at
	}
	return resp
}

func (s *Server) handleAuditAllocations(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotImplemented, "audit indexer disabled")
		return
	}
	account, ok := parseAddressParam(w, r)
	if !ok {
		return
	}
	rows, err := s.audit.Allocations(crypto.AccountString(account))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]auditAllocationResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, auditAllocationResponse{
			Seq:       row.Seq,
			Oracle:    row.Oracle,
			Amount:    row.Amount,
			ProofHash: row.ProofHash,
			Height:    row.Height,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
