// Package main is the terminal client: it resolves a token, finds the
// wallets holding a given amount of it and optionally confirms one wallet
// with a second holding.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"solana-wallet-tracker/internal/app"
	"solana-wallet-tracker/internal/config"
	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/matcher"
)

const usage = `Usage:
  tracker                                   Interactive mode
  tracker -test-token TICKER                Test token resolution
  tracker -token T -amount N                Search once
  tracker -token T -amount N -verify-token T2 -verify-amount N2

How it works:
  1. Enter a ticker symbol (or paste a mint address) and the exact amount held
  2. All holders of that token are scanned for a matching balance
  3. Optionally verify with a second token and amount to narrow results

Setup:
  1. Copy .env.example to .env
  2. Get a free Helius API key at https://helius.dev
  3. Add it to .env: HELIUS_API_KEY=your_key_here
`

// errNoToken is returned when input cannot be resolved to a token.
var errNoToken = errors.New("token not found")

func main() {
	testToken := flag.String("test-token", "", "List the tokens matching a ticker and exit")
	token := flag.String("token", "", "Token ticker or mint address")
	amount := flag.Float64("amount", 0, "Exact token amount held")
	verifyToken := flag.String("verify-token", "", "Second token ticker or mint address")
	verifyAmount := flag.Float64("verify-amount", 0, "Exact amount of the second token")
	envFile := flag.String("env-file", ".env", "Environment file to load")
	configFile := flag.String("config", "", "Config file (yaml or json)")
	verbose := flag.Bool("v", false, "Log matcher activity")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	out := os.Stdout
	printBanner(out)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.LoadOptions{EnvFile: *envFile, ConfigFile: *configFile})
	if err != nil {
		fatal(out, err)
	}

	providers, err := app.Open(ctx, cfg)
	if err != nil {
		fatal(out, err)
	}
	defer providers.Close()

	logger := app.NewLogger("matcher")
	if !*verbose {
		logger.SetOutput(io.Discard)
	}

	s := &session{
		in:      bufio.NewScanner(os.Stdin),
		out:     out,
		tokens:  providers.Resolver,
		matcher: providers.Matcher(cfg, logger),
	}

	switch {
	case *testToken != "":
		err = s.testToken(ctx, *testToken)
	case *token != "":
		err = s.searchOnce(ctx, *token, *amount, *verifyToken, *verifyAmount)
	default:
		err = s.interactive(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		providers.Close()
		fatal(out, err)
	}
}

func fatal(w io.Writer, err error) {
	red.Fprintf(w, "Error: %v\n", err)
	os.Exit(1)
}

// tokenSearcher lists the tokens trading under a ticker, most liquid first.
type tokenSearcher interface {
	SearchByTicker(ctx context.Context, ticker string) ([]*domain.TokenInfo, error)
}

// session is one run of the terminal client.
type session struct {
	in      *bufio.Scanner
	out     io.Writer
	tokens  tokenSearcher
	matcher *matcher.Matcher
}

func (s *session) testToken(ctx context.Context, ticker string) error {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	fmt.Fprintf(s.out, "Testing token resolution for: %s\n\n", ticker)

	tokens, err := s.tokens.SearchByTicker(ctx, ticker)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		red.Fprintf(s.out, "No tokens found for ticker: %s\n", ticker)
		return nil
	}
	cyan.Fprintf(s.out, "Found %d token(s)\n", len(tokens))
	printTokens(s.out, tokens, false)
	return nil
}

// searchOnce runs a non-interactive search. Ambiguous tickers resolve to
// the most liquid token.
func (s *session) searchOnce(ctx context.Context, token string, amount float64, verifyToken string, verifyAmount float64) error {
	if !validAmount(amount) {
		return errors.New("-amount must be a positive number")
	}
	primary, err := s.autoQuery(ctx, token, amount)
	if err != nil {
		return err
	}

	if verifyToken == "" {
		result, err := s.find(ctx, primary)
		if err != nil {
			return err
		}
		printSearchResult(s.out, result)
		return nil
	}

	if !validAmount(verifyAmount) {
		return errors.New("-verify-amount must be a positive number")
	}
	verification, err := s.autoQuery(ctx, verifyToken, verifyAmount)
	if err != nil {
		return err
	}
	return s.verify(ctx, primary, verification)
}

func (s *session) interactive(ctx context.Context) error {
	primary, err := s.promptHolding(ctx, "PRIMARY")
	if err != nil {
		return err
	}

	result, err := s.find(ctx, primary)
	if err != nil {
		return err
	}
	printSearchResult(s.out, result)

	if len(result.Candidates) <= 1 {
		return nil
	}

	fmt.Fprintln(s.out)
	ok, err := s.confirm("Multiple candidates found. Add verification holding?")
	if err != nil || !ok {
		return err
	}
	verification, err := s.promptHolding(ctx, "VERIFICATION")
	if err != nil {
		return err
	}
	return s.verify(ctx, primary, verification)
}

func (s *session) find(ctx context.Context, q *domain.HoldingQuery) (*domain.SearchResult, error) {
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "Searching holders...")
	return s.matcher.WithProgress(s.progress).FindCandidates(ctx, q)
}

func (s *session) verify(ctx context.Context, primary, verification *domain.HoldingQuery) error {
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "Verifying...")
	result, err := s.matcher.WithProgress(s.progress).VerifyWithSecondHolding(ctx, primary, verification)
	if err != nil {
		return err
	}
	printVerification(s.out, result)
	return nil
}

func (s *session) progress(p matcher.Progress) {
	switch p.Stage {
	case matcher.StageResolved:
		dim.Fprintf(s.out, "  resolved %s (%s)\n", p.Token.Symbol, p.Token.MintAddress)
	case matcher.StagePage:
		dim.Fprintf(s.out, "  page %d: %d accounts\n", p.Page.Page, p.Page.TotalRecords)
	}
}

// promptHolding asks for a token and amount, disambiguating tickers.
func (s *session) promptHolding(ctx context.Context, label string) (*domain.HoldingQuery, error) {
	fmt.Fprintln(s.out)
	yellow.Fprintf(s.out, "Enter %s holding details:\n", label)
	dim.Fprintln(s.out, "  Enter a ticker symbol or paste a mint address")

	var raw string
	for raw == "" {
		var err error
		if raw, err = s.prompt("  Token"); err != nil {
			return nil, err
		}
	}
	amount, err := s.promptAmount("  Exact token amount held")
	if err != nil {
		return nil, err
	}

	q := matcher.ParseHoldingInput(raw, amount)
	if q.Resolved() {
		return q, nil
	}

	token, err := s.selectToken(ctx, q.Ticker)
	if err != nil {
		return nil, err
	}
	if token != nil {
		matcher.SelectToken(q, token)
	}
	return q, nil
}

// selectToken looks a ticker up and lets the user pick among several
// matches. It returns nil when nothing matches.
func (s *session) selectToken(ctx context.Context, ticker string) (*domain.TokenInfo, error) {
	tokens, err := s.tokens.SearchByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}
	switch len(tokens) {
	case 0:
		red.Fprintf(s.out, "No tokens found for ticker: %s\n", ticker)
		return nil, nil
	case 1:
		return tokens[0], nil
	}

	fmt.Fprintln(s.out)
	yellow.Fprintf(s.out, "Multiple tokens found for '%s':\n\n", ticker)
	printTokens(s.out, tokens, true)
	fmt.Fprintln(s.out)

	answer, err := s.prompt(fmt.Sprintf("  Select token (1-%d) [1]", len(tokens)))
	if err != nil {
		return nil, err
	}
	if answer == "" {
		return tokens[0], nil
	}
	choice, err := strconv.Atoi(answer)
	if err != nil || choice < 1 || choice > len(tokens) {
		red.Fprintln(s.out, "Invalid selection, using first result.")
		return tokens[0], nil
	}
	return tokens[choice-1], nil
}

// autoQuery builds a query without prompting.
func (s *session) autoQuery(ctx context.Context, raw string, amount float64) (*domain.HoldingQuery, error) {
	q := matcher.ParseHoldingInput(raw, amount)
	if q.Resolved() {
		return q, nil
	}

	tokens, err := s.tokens.SearchByTicker(ctx, q.Ticker)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: %s", errNoToken, q.Ticker)
	}
	if len(tokens) > 1 {
		dim.Fprintf(s.out, "%d tokens match %s, using the most liquid: %s\n", len(tokens), q.Ticker, tokens[0].MintAddress)
	}
	matcher.SelectToken(q, tokens[0])
	return q, nil
}

func (s *session) prompt(label string) (string, error) {
	fmt.Fprintf(s.out, "%s: ", label)
	if !s.in.Scan() {
		if err := s.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(s.in.Text()), nil
}

func (s *session) promptAmount(label string) (float64, error) {
	for {
		raw, err := s.prompt(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err == nil && validAmount(v) {
			return v, nil
		}
		red.Fprintln(s.out, "Please enter a positive number.")
	}
}

// validAmount reports whether v is a positive finite number.
func validAmount(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func (s *session) confirm(label string) (bool, error) {
	answer, err := s.prompt(label + " [y/n]")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
