package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/ledger"
	"solana-wallet-tracker/internal/matcher"
	"solana-wallet-tracker/internal/observability"
)

// Stream event stages beyond the matcher's own progress stages.
const (
	StageDone         = "done"
	StageError        = "error"
	StageDisambiguate = "disambiguate"
)

const wsWriteWait = 10 * time.Second

// Event is one message on the /ws/find stream.
type Event struct {
	Stage   string               `json:"stage"`
	Token   *domain.TokenInfo    `json:"token,omitempty"`
	Page    *ledger.PageProgress `json:"page,omitempty"`
	Tokens  []*domain.TokenInfo  `json:"tokens,omitempty"`
	Result  *domain.SearchResult `json:"result,omitempty"`
	Message string               `json:"message,omitempty"`
}

// handleWSFind runs one search and streams its progress. Query parameters
// mirror FindRequest. The stream ends with a done, error or disambiguate
// event and a normal close.
func (s *Server) handleWSFind(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	token, mint := params.Get("token"), params.Get("mint")
	amount, err := strconv.ParseFloat(params.Get("amount"), 64)
	if err != nil {
		s.badRequest(w, r, http.StatusBadRequest, "amount must be a number")
		return
	}
	if err := validateHolding(token, mint, amount); err != nil {
		s.badRequest(w, r, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("[%s] websocket upgrade: %v", RequestID(r.Context()), err)
		return
	}
	defer conn.Close()

	observability.DefaultMetrics.WSSessions.Inc()
	defer observability.DefaultMetrics.WSSessions.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain client frames; a client close aborts the search at the next page.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	stream := &eventStream{conn: conn, cancel: cancel}
	s.streamFind(ctx, r, stream, token, mint, amount)
	stream.close()
}

func (s *Server) streamFind(ctx context.Context, r *http.Request, stream *eventStream, token, mint string, amount float64) {
	query, choices, err := s.buildQuery(ctx, token, mint, amount)
	if err != nil {
		s.streamFail(r, stream, err)
		return
	}
	switch {
	case len(choices) > 1:
		stream.send(Event{
			Stage:   StageDisambiguate,
			Tokens:  choices,
			Message: fmt.Sprintf("multiple tokens found for %q, reconnect with mint", normalizeTicker(token)),
		})
		return
	case query == nil:
		stream.send(Event{Stage: StageError, Message: fmt.Sprintf("no tokens found for %q", normalizeTicker(token))})
		return
	}

	s.count(&s.searches)
	m := s.matcher.WithProgress(func(p matcher.Progress) {
		stream.send(Event{Stage: p.Stage, Token: p.Token, Page: p.Page})
	})
	result, err := m.FindCandidates(ctx, query)
	if err != nil {
		s.streamFail(r, stream, err)
		return
	}
	if result.Token == nil {
		stream.send(Event{Stage: StageError, Message: fmt.Sprintf("could not resolve %q", query.Ticker)})
		return
	}
	stream.send(Event{Stage: StageDone, Result: result})
}

func (s *Server) streamFail(r *http.Request, stream *eventStream, err error) {
	s.count(&s.failures)
	s.logger.Printf("[%s] ws find failed: %v", RequestID(r.Context()), err)
	_, msg := classify(err)
	stream.send(Event{Stage: StageError, Message: msg})
}

// eventStream writes JSON events from a single goroutine. The first write
// failure cancels the search and silences later sends.
type eventStream struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	err    error
}

func (e *eventStream) send(ev Event) {
	if e.err != nil {
		return
	}
	e.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := e.conn.WriteJSON(ev); err != nil {
		e.err = err
		e.cancel()
	}
}

func (e *eventStream) close() {
	if e.err != nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	e.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
