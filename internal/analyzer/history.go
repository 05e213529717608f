package analyzer

import (
	"sync"

	"github.com/yohannesjx/sentinel/internal/events"
)

const maxHistoryPerToken = 64

// priceHistory is a bounded per-token ring of recent PriceTick closes, the
// substitute for the kline history yohannesjx-sniperterminal/trend_analyzer.go
// fetched live from Binance futures: here the Normalizer's own PriceTick
// stream is the only price source, so the Analyzer keeps its own window.
type priceHistory struct {
	mu     sync.Mutex
	byToken map[events.TokenId][]float64
}

func newPriceHistory() *priceHistory {
	return &priceHistory{byToken: make(map[events.TokenId][]float64)}
}

func (h *priceHistory) record(id events.TokenId, price float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf := h.byToken[id]
	buf = append(buf, price)
	if len(buf) > maxHistoryPerToken {
		buf = buf[len(buf)-maxHistoryPerToken:]
	}
	h.byToken[id] = buf
}

// snapshot returns a copy of the recorded closes, oldest first.
func (h *priceHistory) snapshot(id events.TokenId) []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf := h.byToken[id]
	out := make([]float64, len(buf))
	copy(out, buf)
	return out
}
