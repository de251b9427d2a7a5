package candles

import "strings"

// quote currencies recognized when a full pair is already given
var knownQuotes = []string{"USDT", "USDC", "USD", "BTC", "ETH"}

// NormalizeBinance maps a bare asset name to a Binance spot pair.
// "btc" -> "BTCUSDT"; an already-qualified pair passes through unchanged.
func NormalizeBinance(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return s
	}
	for _, q := range knownQuotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return s
		}
	}
	return s + "USDT"
}

// krakenPairs maps common asset names onto Kraken's pair identifiers.
var krakenPairs = map[string]string{
	"BTC": "XBTUSD",
	"XBT": "XBTUSD",
	"ETH": "ETHUSD",
	"SOL": "SOLUSD",
	"XRP": "XRPUSD",
}

// NormalizeKraken maps a bare asset name or a quote-suffixed pair to a
// Kraken pair. "BTCUSDT" strips down to base "BTC" first, so symbols
// configured in Binance form resolve to valid Kraken identifiers.
func NormalizeKraken(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if p, ok := krakenPairs[s]; ok {
		return p
	}
	for _, q := range knownQuotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			s = strings.TrimSuffix(s, q)
			break
		}
	}
	if p, ok := krakenPairs[s]; ok {
		return p
	}
	return s + "USD"
}
