package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPriceDecode(t *testing.T) {
	var p Price
	if err := json.Unmarshal([]byte(`{"symbol":"BTC","price":45000,"change_24h":1.2,"volume":1200000000}`), &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if p.Symbol != "BTC" {
		t.Errorf("Symbol = %q, want %q", p.Symbol, "BTC")
	}
	if !p.Price.Equal(decimal.NewFromInt(45000)) {
		t.Errorf("Price = %s, want 45000", p.Price)
	}
	if !p.Change24h.Equal(decimal.RequireFromString("1.2")) {
		t.Errorf("Change24h = %s, want 1.2", p.Change24h)
	}
}

func TestUserDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user User
		want string
	}{
		{"full name", User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}, "Ada Lovelace"},
		{"first only", User{FirstName: "Ada", Email: "ada@example.com"}, "Ada"},
		{"last only", User{LastName: "Lovelace"}, "Lovelace"},
		{"email fallback", User{Email: "ada@example.com"}, "ada@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPortfolioHoldingsValue(t *testing.T) {
	p := Portfolio{
		Balance: decimal.NewFromInt(1000),
		Holdings: []Holding{
			{Symbol: "BTC", Value: decimal.RequireFromString("450.50")},
			{Symbol: "ETH", Value: decimal.RequireFromString("49.50")},
		},
	}

	if got := p.HoldingsValue(); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("HoldingsValue() = %s, want 500", got)
	}

	if got := (Portfolio{}).HoldingsValue(); !got.IsZero() {
		t.Errorf("empty HoldingsValue() = %s, want 0", got)
	}
}

func TestTradeTotal(t *testing.T) {
	tr := Trade{Quantity: decimal.RequireFromString("0.5"), Price: decimal.NewFromInt(42000)}
	if got := tr.Total(); !got.Equal(decimal.NewFromInt(21000)) {
		t.Errorf("Total() = %s, want 21000", got)
	}
}

func TestSideValid(t *testing.T) {
	if !SideBuy.Valid() || !SideSell.Valid() {
		t.Error("buy and sell should be valid")
	}
	if Side("hold").Valid() {
		t.Error("hold should not be valid")
	}
}

func TestChannels(t *testing.T) {
	if got := PriceChannel("btc"); got != "crypto-price-BTC" {
		t.Errorf("PriceChannel(btc) = %q, want %q", got, "crypto-price-BTC")
	}

	sym, ok := SymbolFromChannel("crypto-price-ETH")
	if !ok || sym != "ETH" {
		t.Errorf("SymbolFromChannel = (%q, %v), want (ETH, true)", sym, ok)
	}

	for _, ch := range []string{"crypto-prices", "crypto-price-", "portfolio"} {
		if _, ok := SymbolFromChannel(ch); ok {
			t.Errorf("SymbolFromChannel(%q) should fail", ch)
		}
	}
}
