// Package intent is the boundary between free-form user text and the
// orchestrator. Whether an intent came from rules or a model, its amount
// field is re-validated here before any business logic sees it.
package intent

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/mantlegpt/mantlebot/pkg/blockchain"
)

type Kind string

const (
	KindTransfer     Kind = "TRANSFER"
	KindCheckBalance Kind = "CHECK_BALANCE"
	KindGetAddress   Kind = "GET_ADDRESS"
	KindConnect      Kind = "CONNECT"
	KindCreate       Kind = "CREATE"
	KindInfo         Kind = "INFO"
	KindUnknown      Kind = "UNKNOWN"
)

// ErrUnparsableAmount means the extracted amount is not a plain decimal
// number even after cleanup; the transport renders a "couldn't understand"
// reply, never a crash.
var ErrUnparsableAmount = errors.New("amount is not a decimal number")

// Intent is a resolved user intention. Amount is a cleaned decimal string;
// exact integer conversion happens later, once the asset's decimal count is
// known.
type Intent struct {
	Kind   Kind
	Amount string
	Token  blockchain.Asset
	To     string
	Info   string
}

// Extractor turns a user message into an Intent. Implementations may be
// rule-based or model-backed.
type Extractor interface {
	Parse(ctx context.Context, text string) (Intent, error)
}

var (
	amountRe  = regexp.MustCompile(`\d+(?:\.\d+)?`)
	addressRe = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
	// Unit labels the upstream extractor tends to leave glued to amounts.
	unitSuffixRe = regexp.MustCompile(`(?i)\s*(MNT|USDT)\s*`)
	decimalRe    = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
)

// NormalizeAmount strips unit labels and whitespace from a raw amount string
// and verifies what remains is a plain decimal number.
func NormalizeAmount(raw string) (string, error) {
	cleaned := strings.TrimSpace(unitSuffixRe.ReplaceAllString(raw, ""))
	if !decimalRe.MatchString(cleaned) {
		return "", ErrUnparsableAmount
	}
	return cleaned, nil
}

// RuleParser is the tokenizer fallback used when no model is configured or
// the model call fails.
type RuleParser struct{}

func (RuleParser) Parse(_ context.Context, text string) (Intent, error) {
	lower := strings.ToLower(text)
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == ',' || r == '!' || r == '?' || r == '\n' || r == '\t'
	})
	has := func(words ...string) bool {
		for _, tok := range tokens {
			for _, w := range words {
				if tok == w {
					return true
				}
			}
		}
		return false
	}

	switch {
	case has("send", "transfer", "pay"):
		return parseTransfer(text, lower), nil
	case has("connect", "import", "link"):
		return Intent{Kind: KindConnect}, nil
	case has("create", "new", "generate"):
		return Intent{Kind: KindCreate}, nil
	case has("balance", "check", "balances"):
		return Intent{Kind: KindCheckBalance}, nil
	case has("address", "wallet"):
		return Intent{Kind: KindGetAddress}, nil
	case has("mantle", "network", "chain"):
		return Intent{
			Kind: KindInfo,
			Info: "Mantle is a high-performance Ethereum Layer 2 blockchain. For more specific questions, please ask!",
		}, nil
	}
	return Intent{Kind: KindUnknown}, nil
}

func parseTransfer(text, lower string) Intent {
	out := Intent{Kind: KindTransfer, Token: blockchain.AssetNative}

	if strings.Contains(lower, "usdt") {
		out.Token = blockchain.AssetToken
	}
	if m := amountRe.FindString(lower); m != "" {
		out.Amount = m
	}
	if m := addressRe.FindString(text); m != "" {
		out.To = m
	}
	return out
}
