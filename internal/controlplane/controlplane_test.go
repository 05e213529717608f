package controlplane

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yohannesjx/sentinel/internal/analyzer"
	"github.com/yohannesjx/sentinel/internal/cache"
	"github.com/yohannesjx/sentinel/internal/clockid"
	"github.com/yohannesjx/sentinel/internal/events"
	"github.com/yohannesjx/sentinel/internal/executor"
	"github.com/yohannesjx/sentinel/internal/normalizer"
	"github.com/yohannesjx/sentinel/internal/scf"
)

func TestSnapshotStatsWithoutWiringReturnsZeroValues(t *testing.T) {
	clock := clockid.New()
	p := New(clock, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	resp := p.Submit(Command{Kind: CmdSnapshotStats})
	require.True(t, resp.Ok)
	require.NotNil(t, resp.Stats)
	require.Equal(t, 0, resp.Stats.Portfolio.OpenPositions)
}

func TestForceCloseWithoutExecutorErrors(t *testing.T) {
	clock := clockid.New()
	p := New(clock, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	resp := p.Submit(Command{Kind: CmdForceClosePosition, PositionId: "x"})
	require.False(t, resp.Ok)
	require.Equal(t, "not_wired", resp.Reason)
}

func TestPauseResumeAnalyzerReflectsInStats(t *testing.T) {
	clock := clockid.New()
	c := cache.New()
	pipe := analyzer.New(c, clock, analyzer.Providers{}, analyzer.DefaultConfig())
	exec := executor.New(clock, nil, executor.Config{InitialCapital: 100})

	p := New(clock, pipe, exec, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	resp := p.Submit(Command{Kind: CmdPauseAnalyzer})
	require.True(t, resp.Ok)

	stats := p.Submit(Command{Kind: CmdSnapshotStats})
	require.True(t, stats.Ok)
	require.True(t, stats.Stats.Analyzer.Paused)

	resp = p.Submit(Command{Kind: CmdResumeAnalyzer})
	require.True(t, resp.Ok)
	stats = p.Submit(Command{Kind: CmdSnapshotStats})
	require.False(t, stats.Stats.Analyzer.Paused)
}

func TestSnapshotStatsSurfacesNormalizerRejectCounts(t *testing.T) {
	clock := clockid.New()
	norm := normalizer.New(clock)
	norm.Normalize(&scf.Message{Feed: events.FeedNewPair, Data: map[string]any{}})

	p := New(clock, nil, nil, nil, norm)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	resp := p.Submit(Command{Kind: CmdSnapshotStats})
	require.True(t, resp.Ok)
	require.Equal(t, uint64(1), resp.Stats.RejectCounts["missing_token_id"])
}

func TestForceClosePositionNotFound(t *testing.T) {
	clock := clockid.New()
	exec := executor.New(clock, nil, executor.Config{InitialCapital: 100})
	p := New(clock, nil, exec, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	resp := p.Submit(Command{Kind: CmdForceClosePosition, PositionId: "missing"})
	require.False(t, resp.Ok)
	require.Equal(t, "position_not_found", resp.Reason)
}
