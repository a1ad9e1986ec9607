package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/mantlegpt/mantlebot/pkg/blockchain"
)

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"5", "5"},
		{"1.5", "1.5"},
		{" 0.001 ", "0.001"},
		{"5 MNT", "5"},
		{"1.5USDT", "1.5"},
		{"  2 usdt ", "2"},
	}
	for _, tt := range tests {
		got, err := NormalizeAmount(tt.in)
		if err != nil {
			t.Errorf("NormalizeAmount(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeAmount(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeAmountRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "five", "1.2.3", "-1", "NaN", "1e18"} {
		if _, err := NormalizeAmount(in); !errors.Is(err, ErrUnparsableAmount) {
			t.Errorf("NormalizeAmount(%q): err = %v, want ErrUnparsableAmount", in, err)
		}
	}
}

func TestRuleParserTransfer(t *testing.T) {
	p := RuleParser{}

	got, err := p.Parse(context.Background(), "Send 5 MNT to 0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != KindTransfer {
		t.Fatalf("kind = %s", got.Kind)
	}
	if got.Amount != "5" {
		t.Errorf("amount = %q", got.Amount)
	}
	if got.Token != blockchain.AssetNative {
		t.Errorf("token = %s", got.Token)
	}
	if got.To != "0x1111111111111111111111111111111111111111" {
		t.Errorf("to = %q", got.To)
	}
}

func TestRuleParserTokenTransfer(t *testing.T) {
	p := RuleParser{}

	got, err := p.Parse(context.Background(), "pay 1.5 USDT to 0x2222222222222222222222222222222222222222")
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != KindTransfer || got.Token != blockchain.AssetToken {
		t.Fatalf("got %+v", got)
	}
	if got.Amount != "1.5" {
		t.Errorf("amount = %q", got.Amount)
	}
}

func TestRuleParserKinds(t *testing.T) {
	tests := []struct {
		text string
		want Kind
	}{
		{"check my balance", KindCheckBalance},
		{"what is my wallet address", KindGetAddress},
		{"connect my existing key", KindConnect},
		{"create a fresh account", KindCreate},
		{"tell me about the mantle chain", KindInfo},
		{"good morning", KindUnknown},
	}

	p := RuleParser{}
	for _, tt := range tests {
		got, err := p.Parse(context.Background(), tt.text)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.text, err)
		}
		if got.Kind != tt.want {
			t.Errorf("Parse(%q).Kind = %s, want %s", tt.text, got.Kind, tt.want)
		}
	}
}

func TestRuleParserTransferMissingDetails(t *testing.T) {
	p := RuleParser{}

	got, err := p.Parse(context.Background(), "send everything to my friend")
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != KindTransfer {
		t.Fatalf("kind = %s", got.Kind)
	}
	if got.Amount != "" || got.To != "" {
		t.Errorf("expected empty amount/to, got %+v", got)
	}
}
