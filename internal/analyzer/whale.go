package analyzer

import (
	"sync"
	"time"

	"github.com/yohannesjx/sentinel/internal/events"
)

const whaleWindow = 15 * time.Minute

// whaleFlow is a bounded rolling window of recent WhaleTrade buy/sell
// volume per token, the substitute for signal_filter.go's activeRatio
// (buyVol/sellVol) computed there from exchange trade-tape aggregates
// instead of the whale feed (spec §4.3A).
type whaleFlow struct {
	mu      sync.Mutex
	byToken map[events.TokenId][]whaleSample
}

type whaleSample struct {
	at     time.Time
	amount float64
	side   events.Side
}

func newWhaleFlow() *whaleFlow {
	return &whaleFlow{byToken: make(map[events.TokenId][]whaleSample)}
}

func (w *whaleFlow) record(id events.TokenId, amount float64, side events.Side, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	buf := append(w.byToken[id], whaleSample{at: now, amount: amount, side: side})
	cutoff := now.Add(-whaleWindow)
	kept := buf[:0]
	for _, s := range buf {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	w.byToken[id] = kept
}

// score returns a 0-100 whaleScore from the buy/sell volume ratio within the
// rolling window, mirroring signal_filter.go's activeRatio logic: dominant
// buy flow pushes the score above 50, dominant sell flow pushes it below.
// ok is false when there is no recorded whale flow for the token yet.
func (w *whaleFlow) score(id events.TokenId, now time.Time) (score float64, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	buf := w.byToken[id]
	if len(buf) == 0 {
		return 0, false
	}
	cutoff := now.Add(-whaleWindow)
	var buyVol, sellVol float64
	for _, s := range buf {
		if s.at.Before(cutoff) {
			continue
		}
		if s.side == events.SideBuy {
			buyVol += s.amount
		} else {
			sellVol += s.amount
		}
	}
	if buyVol == 0 && sellVol == 0 {
		return 0, false
	}
	ratio := buyVol / (buyVol + sellVol) // in [0,1], 0.5 is balanced
	return clamp100(ratio * 100), true
}
