package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/yohannesjx/sentinel/config"
	"github.com/yohannesjx/sentinel/internal/analyzer"
	"github.com/yohannesjx/sentinel/internal/cache"
	"github.com/yohannesjx/sentinel/internal/clockid"
	"github.com/yohannesjx/sentinel/internal/controlplane"
	"github.com/yohannesjx/sentinel/internal/events"
	"github.com/yohannesjx/sentinel/internal/executor"
	"github.com/yohannesjx/sentinel/internal/ledger"
	"github.com/yohannesjx/sentinel/internal/normalizer"
	"github.com/yohannesjx/sentinel/internal/persistence"
	"github.com/yohannesjx/sentinel/internal/risk"
	"github.com/yohannesjx/sentinel/internal/scf"
)

// feedSubscription pairs a logical feed with the URL/topics it is read from
// (spec §6 "Feed subscriptions").
type feedSubscription struct {
	url    string
	feed   events.FeedKind
	topics []string
}

func main() {
	cfg := config.LoadConfig()
	clock := clockid.New()

	tokenCache := cache.New()
	pipe := analyzer.New(tokenCache, clock, analyzer.Providers{}, analyzer.Config{
		Workers:      cfg.AnalyzerWorkers,
		QueueDepth:   cfg.AnalyzerQueueDepth,
		JobTimeout:   cfg.JobTimeout,
		Cooldown:     cfg.Cooldown,
		CooldownBump: cfg.CooldownBump,
	})

	limits := risk.DefaultLimits()
	limits.AllowRiskyEmission = cfg.AllowRiskyEmission
	riskMgr := risk.New(limits, risk.NewBreakers())

	exec := executor.New(clock, riskMgr, executor.Config{InitialCapital: cfg.InitialCapital})
	exec.SetPositionCache(tokenCache)
	outcomeLedger := ledger.New()
	loadPersistedState(cfg, exec, outcomeLedger)

	fabric := scf.New(scf.NewGorillaDialer(), clock)
	norm := normalizer.New(clock)
	plane := controlplane.New(clock, pipe, exec, outcomeLedger, norm)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	subs := []feedSubscription{
		{url: cfg.ClusterFeedURL, feed: events.FeedNewPair, topics: []string{string(events.FeedNewPair)}},
		{url: cfg.ClusterFeedURL, feed: events.FeedWhale, topics: []string{"whale"}},
		{url: cfg.ClusterFeedURL, feed: events.FeedCluster, topics: []string{
			"trending-search-crypto", "block_hash", "sol-priority-fee", "jito-bribe-fee",
			"connection_monitor", "twitter_feed_v2",
		}},
		{url: cfg.PriceTrackerFeedURL, feed: events.FeedPriceTracker, topics: []string{string(events.FeedPriceTracker)}},
	}

	opts := scf.DefaultOptions()
	opts.DedupWindow = cfg.SCFDedupWindow

	for _, sub := range subs {
		if sub.url == "" {
			continue
		}
		handle, err := fabric.Subscribe(sub.url, sub.feed, sub.topics, nil, opts)
		if err != nil {
			log.Printf("⚠️  failed to subscribe feed=%s url=%s: %v", sub.feed, sub.url, err)
			continue
		}
		go pumpFeed(ctx, handle, norm, pipe, exec, tokenCache)
	}

	go pipe.Run(ctx)
	go plane.Run(ctx)
	go drainOpportunities(ctx, pipe, exec, riskMgr, tokenCache, clock)
	go drainClosedTrades(ctx, exec, outcomeLedger)
	go sweepLoop(ctx, exec)
	go cacheSweepLoop(ctx, tokenCache)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		resp := plane.Submit(controlplane.Command{Kind: controlplane.CmdSnapshotStats})
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp.Stats)
	})

	srv := &http.Server{Addr: ":8081", Handler: mux}
	go func() {
		log.Println("🌐 Server running on :8081")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("⚠️  HTTP server error: %v", err)
		}
	}()

	log.Println("✅ All systems go")
	<-ctx.Done()
	log.Println("🛑 Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	savePersistedState(cfg, exec, outcomeLedger)
}

// loadPersistedState restores the optional performance snapshot and outcome
// ledger files written on the previous graceful shutdown (spec §6
// "Persisted state"). Either file may be absent (first run) or corrupt (a
// prior crash mid-write never happens thanks to atomic rename, but a file
// edited or truncated out-of-band is still handled); both are fail-soft.
func loadPersistedState(cfg *config.Config, exec *executor.Executor, outcomeLedger *ledger.Ledger) {
	var perf executor.PerformanceSnapshot
	if ok, err := persistence.Load(cfg.PerformanceStatePath, &perf); err != nil {
		log.Printf("⚠️  failed to load performance state: %v", err)
	} else if ok {
		exec.RestorePerformance(perf)
		log.Printf("✅ restored performance state from %s", cfg.PerformanceStatePath)
	}

	var snap ledger.Snapshot
	if ok, err := persistence.Load(cfg.LedgerStatePath, &snap); err != nil {
		log.Printf("⚠️  failed to load outcome ledger state: %v", err)
	} else if ok {
		outcomeLedger.Restore(snap)
		log.Printf("✅ restored %d ledger entries from %s", len(snap.Trades), cfg.LedgerStatePath)
	}
}

// savePersistedState atomically writes the performance snapshot and outcome
// ledger on graceful shutdown (spec §6).
func savePersistedState(cfg *config.Config, exec *executor.Executor, outcomeLedger *ledger.Ledger) {
	now := time.Now()
	if err := persistence.SaveAtomic(cfg.PerformanceStatePath, exec.ExportPerformance(now)); err != nil {
		log.Printf("⚠️  failed to save performance state: %v", err)
	}
	if err := persistence.SaveAtomic(cfg.LedgerStatePath, outcomeLedger.Export()); err != nil {
		log.Printf("⚠️  failed to save outcome ledger state: %v", err)
	}
}

// pumpFeed reads decoded messages off an scf.Handle, normalizes them, and
// forwards the result to the Analyzer Pipeline (PriceTick/WhaleTrade also
// feed the Paper Executor/Analyzer history in parallel, spec §2 dataflow).
func pumpFeed(ctx context.Context, h *scf.Handle, norm *normalizer.Normalizer, pipe *analyzer.Pipeline, exec *executor.Executor, tokenCache *cache.Cache) {
	for {
		item, ok := h.Next(ctx)
		if !ok {
			return
		}
		msg, ok := item.(*scf.Message)
		if !ok {
			continue // *events.ConnectionStatePayload; surfaced via stats, not the Analyzer
		}
		result := norm.Normalize(msg)
		if result.Reject != nil {
			continue
		}
		ev := *result.Event

		switch payload := ev.Payload.(type) {
		case events.PriceTickPayload:
			exec.OnPriceTick(payload, time.Now())
			pipe.RecordPriceTick(payload.TokenId, payload.Price)
			tokenCache.Update(payload.TokenId, ev.WallTs, func(r *events.TokenRecord) {
				if ev.WallTs >= r.LastPriceTs {
					r.LastPrice = payload.Price
					r.LastPriceTs = ev.WallTs
				}
			})
		case events.WhaleTradePayload:
			pipe.RecordWhaleTrade(payload.TokenId, payload.TransactionAmount, payload.Side, time.Now())
		}
		pipe.Submit(ev)
	}
}

// drainOpportunities runs the Risk Manager against every emitted Opportunity
// and hands approved TradeIntents to the Paper Executor (spec §2 dataflow:
// "Analyzer -> Risk Manager -> Paper Executor").
func drainOpportunities(ctx context.Context, pipe *analyzer.Pipeline, exec *executor.Executor, riskMgr *risk.Manager, tokenCache *cache.Cache, clock *clockid.Clock) {
	for {
		select {
		case <-ctx.Done():
			return
		case opp, ok := <-pipe.Opportunities():
			if !ok {
				return
			}
			exec.OnOpportunity(opp)

			rec, _ := tokenCache.Get(opp.TokenId)
			now := time.Now()
			snap := exec.Snapshot(now)
			pv := risk.PortfolioView{
				NAV:           snap.NAV,
				CashReserve:   snap.CashReserve,
				OpenPositions: snap.OpenPositions,
				DailyPnLPct:   snap.DailyPnLPct,
				WeeklyPnLPct:  snap.WeeklyPnLPct,
				DrawdownPct:   snap.DrawdownPct,
			}
			decision := riskMgr.Evaluate(opp, rec, rec.Holders, pv, now)
			if decision.Ignored {
				continue
			}
			if decision.Intent != nil {
				exec.Open(*decision.Intent, opp, now)
			}
			// Reject is informational only; no dashboard to surface it to in this module.
		}
	}
}

// drainClosedTrades persists every ClosedTrade into the Outcome Ledger.
func drainClosedTrades(ctx context.Context, exec *executor.Executor, l *ledger.Ledger) {
	for {
		select {
		case <-ctx.Done():
			return
		case trade, ok := <-exec.ClosedTrades():
			if !ok {
				return
			}
			l.Append(trade)
		}
	}
}

// sweepLoop periodically expires positions past their hold deadline even
// absent a driving PriceTick (spec §4.5 TimeLimit exit).
func sweepLoop(ctx context.Context, exec *executor.Executor) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			exec.SweepTimeLimits(time.Now())
		}
	}
}

// cacheSweepLoop periodically evicts stale Token Cache records (spec §4.6
// "Evictions prefer records with no open position and stale lastPriceTs"),
// grounded on the reference fleet's 10-second cleanup() ticker.
func cacheSweepLoop(ctx context.Context, tokenCache *cache.Cache) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tokenCache.SweepTTL(time.Now().UnixMilli(), time.Hour)
		}
	}
}
