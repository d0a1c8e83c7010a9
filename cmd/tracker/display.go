package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"solana-wallet-tracker/internal/domain"
)

// maxRows bounds the candidate table.
const maxRows = 20

var (
	cyan   = color.New(color.FgCyan, color.Bold)
	green  = color.New(color.FgGreen, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	dim    = color.New(color.Faint)
)

func printBanner(w io.Writer) {
	cyan.Fprintln(w, "+-----------------------------------------------------------+")
	cyan.Fprintln(w, "|           SOLANA WALLET TRACKER                           |")
	cyan.Fprintln(w, "|     Find wallets by token holdings                        |")
	cyan.Fprintln(w, "+-----------------------------------------------------------+")
	fmt.Fprintln(w)
}

// printTokens lists tokens, numbered when numbered is set.
func printTokens(w io.Writer, tokens []*domain.TokenInfo, numbered bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if numbered {
		fmt.Fprint(tw, "#\t")
	}
	fmt.Fprintln(tw, "SYMBOL\tNAME\tMINT ADDRESS\tMARKET CAP\tLIQUIDITY")
	for i, t := range tokens {
		if numbered {
			fmt.Fprintf(tw, "%d\t", i+1)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			t.Symbol, truncate(t.Name, 25), t.MintAddress, usd(t.MarketCap), usd(t.LiquidityUSD))
	}
	tw.Flush()
}

func printSearchResult(w io.Writer, r *domain.SearchResult) {
	fmt.Fprintln(w)
	if r.Token == nil {
		red.Fprintln(w, "Token Not Found")
		fmt.Fprintf(w, "Could not find token: %s\n", r.Query.Ticker)
		return
	}

	t := r.Token
	green.Fprintln(w, "Token Found")
	fmt.Fprintf(w, "%s - %s\n", t.Symbol, t.Name)
	dim.Fprintf(w, "Mint: %s\n", t.MintAddress)
	fmt.Fprintf(w, "Current Price: $%.10f\n", t.PriceUSD)
	fmt.Fprintf(w, "Market Cap: %s\n", usd(t.MarketCap))
	fmt.Fprintf(w, "Liquidity: %s\n", usd(t.LiquidityUSD))
	fmt.Fprintln(w)
	dim.Fprintf(w, "Scanned %d holders in %dms\n", r.TotalHoldersScanned, r.SearchTimeMs)

	if !r.Found() {
		yellow.Fprintln(w, "No Matches")
		fmt.Fprintln(w, "No matching wallets found. Try adjusting the token amount or check the ticker.")
		return
	}

	fmt.Fprintln(w)
	cyan.Fprintf(w, "Found %d Candidate Wallet(s)\n", len(r.Candidates))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tWALLET ADDRESS\tTOKEN BALANCE\tOWNER")
	for i, m := range r.Candidates {
		if i == maxRows {
			break
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, m.Address, balance(m, t.MintAddress), ownerKind(m))
	}
	tw.Flush()
	if len(r.Candidates) > maxRows {
		dim.Fprintf(w, "... and %d more\n", len(r.Candidates)-maxRows)
	}

	if r.UniqueMatch() {
		fmt.Fprintln(w)
		green.Fprintln(w, "LIKELY WALLET")
		fmt.Fprintln(w, r.Candidates[0].Address)
		dim.Fprintln(w, "Add a verification holding to confirm.")
	}
}

func printVerification(w io.Writer, r *domain.VerificationResult) {
	fmt.Fprintln(w)
	switch {
	case r.Verified():
		green.Fprintln(w, "WALLET CONFIRMED")
		fmt.Fprintln(w, r.Wallet())
		fmt.Fprintln(w, "This wallet holds both specified token amounts.")
	case len(r.ConfirmedWallets) > 1:
		yellow.Fprintln(w, "MULTIPLE MATCHES")
		fmt.Fprintf(w, "Found %d wallets matching both holdings:\n", len(r.ConfirmedWallets))
		for _, addr := range r.ConfirmedWallets {
			fmt.Fprintf(w, "  - %s\n", addr)
		}
	default:
		red.Fprintln(w, "NO MATCHES")
		fmt.Fprintln(w, "No wallet found holding both specified token amounts.")
		fmt.Fprintf(w, "Primary holding candidates: %d\n", len(r.PrimaryCandidates))
		fmt.Fprintf(w, "Verification holding candidates: %d\n", len(r.VerificationCandidates))
	}
}

func balance(m *domain.WalletMatch, mint string) string {
	amount, ok := m.Holdings[mint]
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%.6f", amount)
}

func ownerKind(m *domain.WalletMatch) string {
	if m.OnCurve {
		return "wallet"
	}
	return "program"
}

// usd formats a dollar amount with thousands separators, or N/A for zero.
func usd(v float64) string {
	if v == 0 {
		return "N/A"
	}
	s := fmt.Sprintf("%.0f", v)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
