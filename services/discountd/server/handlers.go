package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"cpswap/crypto"
	"cpswap/native/discount"
	"cpswap/observability/logging"
	"cpswap/services/discountd/api"
	"cpswap/services/discountd/middleware"
)

const maxBodyBytes = 16 << 10

func (s *Server) userParam(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	user, err := crypto.ParseAccount(strings.TrimSpace(chi.URLParam(r, "user")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user", err.Error())
		return [20]byte{}, false
	}
	if user == ([20]byte{}) {
		writeError(w, http.StatusBadRequest, "invalid_user", "user must not be the zero account")
		return [20]byte{}, false
	}
	return user, true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userParam(w, r)
	if !ok {
		return
	}
	s.writeDiscount(w, r, http.StatusOK, user)
}

func (s *Server) writeDiscount(w http.ResponseWriter, r *http.Request, status int, user [20]byte) {
	addr, record, err := s.ledger.UserDiscount(r.Context(), user)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	schedule := s.ledger.Schedule()
	writeJSON(w, status, api.Discount{
		User:         crypto.FormatAccount(user),
		Record:       addr.String(),
		Bump:         record.Bump,
		Numerator:    record.DiscountNumerator,
		Denominator:  schedule.Denominator(),
		MaxNumerator: schedule.MaxDiscountNumerator(),
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userParam(w, r)
	if !ok {
		return
	}
	var req api.CreateRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}
	payer := user
	if strings.TrimSpace(req.Payer) != "" {
		parsed, err := crypto.ParseAccount(req.Payer)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payer", err.Error())
			return
		}
		payer = parsed
	}
	if _, err := s.ledger.CreateUserDiscount(r.Context(), payer, user); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeDiscount(w, r, http.StatusCreated, user)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userParam(w, r)
	if !ok {
		return
	}
	var req api.UpdateRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}
	record, err := discount.ParseAddress(req.Record)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_record", err.Error())
		return
	}
	caller, err := crypto.ParseAccount(strings.TrimSpace(req.Caller))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_caller", err.Error())
		return
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(req.Signature), "0x"))
	if err != nil || len(sig) != 65 {
		writeError(w, http.StatusBadRequest, "invalid_signature", "signature must be 65 hex-encoded bytes")
		return
	}

	now := s.now().Unix()
	if req.Expiry <= now {
		writeError(w, http.StatusUnauthorized, "signature_expired", "signed update has expired")
		return
	}
	if req.Expiry > now+int64(s.cfg.SignatureMaxAge.Seconds()) {
		writeError(w, http.StatusUnauthorized, "expiry_too_far", "signed update expires too far in the future")
		return
	}
	digest := api.UpdateDigest(user, record, req.Numerator, req.Expiry)
	signer, err := crypto.RecoverSigner(digest, sig)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_signature", "signature could not be verified")
		return
	}
	if signer != caller {
		s.logger.WarnContext(r.Context(), "discountd: signer mismatch",
			"request_id", middleware.RequestIDFrom(r.Context()),
			"caller", crypto.FormatAccount(caller),
			logging.MaskField("signature", req.Signature))
		writeError(w, http.StatusUnauthorized, "signer_mismatch", "signature does not belong to caller")
		return
	}
	if err := s.ledger.Authorize(signer); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	claimed, err := s.replay.Claim(digest, req.Expiry, now)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "discountd: replay guard failure",
			"request_id", middleware.RequestIDFrom(r.Context()),
			"error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	if !claimed {
		writeError(w, http.StatusConflict, "replayed", "signed update already submitted")
		return
	}

	err = s.ledger.UpdateUserDiscount(r.Context(), discount.UpdateRequest{
		Caller:   signer,
		User:     user,
		Record:   record,
		Discount: req.Numerator,
	})
	if err != nil {
		if releaseErr := s.replay.Release(digest); releaseErr != nil {
			s.logger.WarnContext(r.Context(), "discountd: release replay claim",
				"request_id", middleware.RequestIDFrom(r.Context()),
				"error", releaseErr)
		}
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeDiscount(w, r, http.StatusOK, user)
}

func (s *Server) handleFee(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userParam(w, r)
	if !ok {
		return
	}
	baseFee, err := strconv.ParseUint(strings.TrimSpace(r.URL.Query().Get("base_fee")), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_base_fee", "base_fee must be an unsigned integer")
		return
	}
	result, err := s.ledger.EffectiveFee(r.Context(), user, baseFee)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Fee{
		User:      crypto.FormatAccount(user),
		BaseFee:   result.BaseFee,
		Rebate:    result.Rebate,
		Effective: result.Effective,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "audit_disabled", "audit journal not configured")
		return
	}
	user, ok := s.userParam(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	entries, err := s.history.History(r.Context(), user, limit)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "discountd: history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "history unavailable")
		return
	}
	out := make([]api.HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, api.HistoryEntry{
			ID:          entry.ID.String(),
			Type:        entry.Type,
			User:        entry.User,
			Record:      entry.Record,
			Actor:       entry.Actor,
			Previous:    entry.Previous,
			Numerator:   entry.Numerator,
			Denominator: entry.Denominator,
			CreatedAt:   entry.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func decodeBody(r *http.Request, out any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
