package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/matcher"
	"solana-wallet-tracker/internal/transport"
)

// Response statuses.
const (
	StatusOK           = "ok"
	StatusDisambiguate = "disambiguate"
	StatusNotFound     = "not_found"
	StatusVerified     = "verified"
	StatusAmbiguous    = "ambiguous"
	StatusUnverified   = "unverified"
	StatusError        = "error"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 16

// FindRequest is the body of POST /api/find. Mint, when set, pins the
// token after a disambiguation response.
type FindRequest struct {
	Token  string  `json:"token"`
	Amount float64 `json:"amount"`
	Mint   string  `json:"mint,omitempty"`
}

// FindResponse is returned by POST /api/find.
type FindResponse struct {
	Status  string               `json:"status"`
	Message string               `json:"message,omitempty"`
	Tokens  []*domain.TokenInfo  `json:"tokens,omitempty"` // disambiguation choices
	Result  *domain.SearchResult `json:"result,omitempty"`
}

// VerifyRequest is the body of POST /api/verify.
type VerifyRequest struct {
	Token1  string  `json:"token1"`
	Amount1 float64 `json:"amount1"`
	Token2  string  `json:"token2"`
	Amount2 float64 `json:"amount2"`
}

// VerifyResponse is returned by POST /api/verify.
type VerifyResponse struct {
	Status  string                     `json:"status"`
	Message string                     `json:"message,omitempty"`
	Missing []string                   `json:"missing,omitempty"` // unresolvable tokens
	Wallet  string                     `json:"wallet,omitempty"`
	Result  *domain.VerificationResult `json:"result,omitempty"`
}

// TokensResponse is returned by GET /api/tokens.
type TokensResponse struct {
	Ticker string              `json:"ticker"`
	Tokens []*domain.TokenInfo `json:"tokens"`
}

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.badRequest(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ticker := normalizeTicker(r.URL.Query().Get("ticker"))
	if ticker == "" {
		s.badRequest(w, r, http.StatusBadRequest, "ticker is required")
		return
	}

	tokens, err := s.tokens.SearchByTicker(r.Context(), ticker)
	if err != nil {
		s.fail(w, r, "tokens", err)
		return
	}
	if tokens == nil {
		tokens = []*domain.TokenInfo{}
	}
	writeJSON(w, http.StatusOK, TokensResponse{Ticker: ticker, Tokens: tokens})
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.badRequest(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req FindRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.badRequest(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateHolding(req.Token, req.Mint, req.Amount); err != nil {
		s.badRequest(w, r, http.StatusBadRequest, err.Error())
		return
	}

	query, choices, err := s.buildQuery(r.Context(), req.Token, req.Mint, req.Amount)
	if err != nil {
		s.fail(w, r, "find", err)
		return
	}
	switch {
	case len(choices) > 1:
		writeJSON(w, http.StatusMultipleChoices, FindResponse{
			Status:  StatusDisambiguate,
			Message: fmt.Sprintf("multiple tokens found for %q, resubmit with mint", normalizeTicker(req.Token)),
			Tokens:  choices,
		})
		return
	case query == nil:
		writeJSON(w, http.StatusNotFound, FindResponse{
			Status:  StatusNotFound,
			Message: fmt.Sprintf("no tokens found for %q", normalizeTicker(req.Token)),
		})
		return
	}

	s.count(&s.searches)
	result, err := s.matcher.FindCandidates(r.Context(), query)
	if err != nil {
		s.fail(w, r, "find", err)
		return
	}
	if result.Token == nil {
		writeJSON(w, http.StatusNotFound, FindResponse{
			Status:  StatusNotFound,
			Message: fmt.Sprintf("could not resolve %q", query.Ticker),
			Result:  result,
		})
		return
	}
	writeJSON(w, http.StatusOK, FindResponse{Status: StatusOK, Result: result})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.badRequest(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req VerifyRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.badRequest(w, r, http.StatusBadRequest, err.Error())
		return
	}
	for _, h := range []struct {
		token  string
		amount float64
	}{{req.Token1, req.Amount1}, {req.Token2, req.Amount2}} {
		if err := validateHolding(h.token, "", h.amount); err != nil {
			s.badRequest(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	primary, err := s.autoResolve(r.Context(), req.Token1, req.Amount1)
	if err != nil {
		s.fail(w, r, "verify", err)
		return
	}
	second, err := s.autoResolve(r.Context(), req.Token2, req.Amount2)
	if err != nil {
		s.fail(w, r, "verify", err)
		return
	}

	var missing []string
	if primary == nil {
		missing = append(missing, req.Token1)
	}
	if second == nil {
		missing = append(missing, req.Token2)
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusNotFound, VerifyResponse{
			Status:  StatusNotFound,
			Message: "could not resolve: " + strings.Join(missing, ", "),
			Missing: missing,
		})
		return
	}

	s.count(&s.verifies)
	result, err := s.matcher.VerifyWithSecondHolding(r.Context(), primary, second)
	if err != nil {
		s.fail(w, r, "verify", err)
		return
	}

	resp := VerifyResponse{Result: result, Wallet: result.Wallet()}
	switch {
	case result.Verified():
		resp.Status = StatusVerified
	case len(result.ConfirmedWallets) > 1:
		resp.Status = StatusAmbiguous
		resp.Message = fmt.Sprintf("%d wallets hold both amounts", len(result.ConfirmedWallets))
	default:
		resp.Status = StatusUnverified
		resp.Message = "no wallet holds both amounts"
	}
	writeJSON(w, http.StatusOK, resp)
}

// buildQuery turns request input into a search query. A mint (explicit or
// pasted as the token) is used directly. A ticker is looked up: one match
// pins the query, several are returned as choices, none yields nil.
func (s *Server) buildQuery(ctx context.Context, token, mint string, amount float64) (*domain.HoldingQuery, []*domain.TokenInfo, error) {
	if mint != "" {
		q := matcher.ParseHoldingInput(mint, amount)
		if t := normalizeTicker(token); t != "" && !matcher.LooksLikeMint(token) {
			q.Ticker = t
		}
		return q, nil, nil
	}
	if matcher.LooksLikeMint(token) {
		return matcher.ParseHoldingInput(token, amount), nil, nil
	}

	candidates, err := s.tokens.SearchByTicker(ctx, normalizeTicker(token))
	if err != nil {
		return nil, nil, fmt.Errorf("search %q: %w", token, err)
	}
	switch len(candidates) {
	case 0:
		return nil, nil, nil
	case 1:
		q := matcher.ParseHoldingInput(token, amount)
		matcher.SelectToken(q, candidates[0])
		return q, nil, nil
	default:
		return nil, candidates, nil
	}
}

// autoResolve is buildQuery without disambiguation: the most liquid token wins.
func (s *Server) autoResolve(ctx context.Context, token string, amount float64) (*domain.HoldingQuery, error) {
	q, choices, err := s.buildQuery(ctx, token, "", amount)
	if err != nil || q != nil {
		return q, err
	}
	if len(choices) == 0 {
		return nil, nil
	}
	q = matcher.ParseHoldingInput(token, amount)
	matcher.SelectToken(q, choices[0])
	return q, nil
}

// validateHolding checks one token/amount pair of user input.
func validateHolding(token, mint string, amount float64) error {
	if strings.TrimSpace(token) == "" && mint == "" {
		return errors.New("token is required")
	}
	if mint != "" && !matcher.LooksLikeMint(mint) {
		return fmt.Errorf("invalid mint address %q", mint)
	}
	if !(amount > 0) || math.IsInf(amount, 0) {
		return errors.New("amount must be a positive number")
	}
	return nil
}

func normalizeTicker(raw string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Status: StatusError, Message: msg, RequestID: RequestID(r.Context())})
}

// fail logs err and answers with a generic message classified by error kind.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.count(&s.failures)
	id := RequestID(r.Context())
	s.logger.Printf("[%s] %s failed: %v", id, op, err)

	status, msg := classify(err)
	writeJSON(w, status, ErrorResponse{Status: StatusError, Message: msg, RequestID: id})
}

// classify maps an error to an HTTP status and a client-safe message.
func classify(err error) (int, string) {
	var rl *transport.RateLimitedError
	var te *transport.TransportError
	var ue *transport.UpstreamError
	switch {
	case errors.As(err, &rl):
		return http.StatusServiceUnavailable, "upstream rate limit reached, try again later"
	case errors.As(err, &te):
		return http.StatusBadGateway, "upstream service unreachable"
	case errors.As(err, &ue), errors.Is(err, transport.ErrMalformedResponse):
		return http.StatusBadGateway, "upstream service returned an error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request cancelled"
	default:
		return http.StatusInternalServerError, "search failed"
	}
}
