package model

import "strings"

// Realtime channel names.
const (
	ChannelPrices    = "crypto-prices"
	ChannelPortfolio = "portfolio"
	ChannelTrades    = "trades"
	ChannelOrders    = "orders"

	pricePrefix = "crypto-price-"
)

// PriceChannel returns the per-symbol price channel, e.g. "crypto-price-BTC".
func PriceChannel(symbol string) string {
	return pricePrefix + strings.ToUpper(symbol)
}

// SymbolFromChannel extracts the symbol from a per-symbol price channel.
func SymbolFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, pricePrefix) || len(channel) == len(pricePrefix) {
		return "", false
	}
	return channel[len(pricePrefix):], true
}
