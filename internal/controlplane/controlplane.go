// Package controlplane implements the Control Plane (spec §4.7): a single
// typed command channel generalizing the teacher's ad hoc HTTP handlers
// (main.go's "/predator/kill", "/api/set-target") and execution_service.go's
// EmergencyStopAll into Start/Stop/PauseAnalyzer/ResumeAnalyzer/
// ForceClosePosition/SetConfig/SnapshotStats, each acknowledged with a
// correlation id.
package controlplane

import (
	"context"
	"log"
	"time"

	"github.com/yohannesjx/sentinel/internal/analyzer"
	"github.com/yohannesjx/sentinel/internal/clockid"
	"github.com/yohannesjx/sentinel/internal/events"
	"github.com/yohannesjx/sentinel/internal/executor"
	"github.com/yohannesjx/sentinel/internal/ledger"
)

// Kind enumerates the commands the Control Plane accepts (spec §4.7).
type Kind string

const (
	CmdStart             Kind = "Start"
	CmdStop              Kind = "Stop"
	CmdPauseAnalyzer     Kind = "PauseAnalyzer"
	CmdResumeAnalyzer    Kind = "ResumeAnalyzer"
	CmdForceClosePosition Kind = "ForceClosePosition"
	CmdSetConfig         Kind = "SetConfig"
	CmdSnapshotStats     Kind = "SnapshotStats"
)

// Command is one inbound request. PositionId is used by ForceClosePosition;
// Section/Values by SetConfig. Reply receives exactly one Response.
type Command struct {
	Kind       Kind
	PositionId string
	Section    string
	Values     map[string]any
	Reply      chan Response
}

// Response is either an Ack or an Error, both carrying the originating
// correlation id (spec §4.7A, google/uuid values replacing the teacher's
// fmt.Sprintf("%d", time.Now().UnixNano()) ids).
type Response struct {
	CorrelationId string
	Ok            bool
	Reason        string
	Stats         *Stats
}

// Stats is the SnapshotStats payload, generalizing GetStatusReport/
// GetDailyReport (spec §4.7A).
type Stats struct {
	Analyzer     analyzer.Stats
	Portfolio    executor.Portfolio
	Ledger       ledger.Summary
	RejectCounts map[string]uint64
}

// AnalyzerControl is the narrow slice of the Analyzer Pipeline the Control
// Plane drives (spec §4.3 Pause/Resume, §4.7).
type AnalyzerControl interface {
	Pause()
	Resume()
	Stats() analyzer.Stats
}

// ExecutorControl is the narrow slice of the Paper Executor the Control
// Plane drives.
type ExecutorControl interface {
	ForceClose(positionId string, reason events.ExitReason, now time.Time) bool
	Snapshot(now time.Time) executor.Portfolio
}

// LedgerControl is the narrow slice of the Outcome Ledger the Control Plane
// reads from for SnapshotStats.
type LedgerControl interface {
	Summary(now time.Time, window time.Duration) ledger.Summary
}

// NormalizerControl is the narrow slice of the Normalizer the Control Plane
// reads from for SnapshotStats (spec §4.2 "the dashboard sees structured
// stats"). May be nil; SnapshotStats then omits RejectCounts.
type NormalizerControl interface {
	RejectSummary() map[string]uint64
}

// Plane is the Control Plane itself: one goroutine serializing all commands
// against the wired components (spec §5 "one logical actor per mutable
// component").
type Plane struct {
	clock      *clockid.Clock
	analyzer   AnalyzerControl
	executor   ExecutorControl
	ledger     LedgerControl
	normalizer NormalizerControl
	cmds       chan Command
	running    bool
	stop       context.CancelFunc
}

// New constructs a Plane. Any of analyzer/executor/ledger/normalizer may be
// nil. Pause/Resume without an analyzer and ForceClosePosition without an
// executor return Error{"not_wired"}; SnapshotStats leaves the part of Stats
// belonging to a nil component at its zero value.
func New(clock *clockid.Clock, analyzer AnalyzerControl, executor ExecutorControl, ledger LedgerControl, normalizer NormalizerControl) *Plane {
	return &Plane{
		clock:      clock,
		analyzer:   analyzer,
		executor:   executor,
		ledger:     ledger,
		normalizer: normalizer,
		cmds:       make(chan Command, 64),
	}
}

// Submit enqueues a command for processing and blocks for its Response.
// Callers own cmd.Reply's lifecycle; Submit allocates it if nil.
func (p *Plane) Submit(cmd Command) Response {
	if cmd.Reply == nil {
		cmd.Reply = make(chan Response, 1)
	}
	p.cmds <- cmd
	return <-cmd.Reply
}

// Run processes commands until ctx is cancelled, then returns at once;
// commands still queued at that point are not processed.
func (p *Plane) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-p.cmds:
			cmd.Reply <- p.handle(ctx, cmd)
		}
	}
}

func (p *Plane) handle(ctx context.Context, cmd Command) Response {
	id := clockid.NewId()
	now := time.Now()

	switch cmd.Kind {
	case CmdStart:
		p.running = true
		return ack(id)
	case CmdStop:
		p.running = false
		return ack(id)
	case CmdPauseAnalyzer:
		if p.analyzer == nil {
			return errResp(id, "not_wired")
		}
		p.analyzer.Pause()
		return ack(id)
	case CmdResumeAnalyzer:
		if p.analyzer == nil {
			return errResp(id, "not_wired")
		}
		p.analyzer.Resume()
		return ack(id)
	case CmdForceClosePosition:
		if p.executor == nil {
			return errResp(id, "not_wired")
		}
		if !p.executor.ForceClose(cmd.PositionId, events.ExitRiskForced, now) {
			return errResp(id, "position_not_found")
		}
		return ack(id)
	case CmdSetConfig:
		log.Printf("controlplane: SetConfig section=%s values=%v (accepted, not yet dynamically applied)", cmd.Section, cmd.Values)
		return ack(id)
	case CmdSnapshotStats:
		return Response{CorrelationId: id, Ok: true, Stats: p.snapshot(now)}
	default:
		return errResp(id, "unknown_command")
	}
}

func (p *Plane) snapshot(now time.Time) *Stats {
	var s Stats
	if p.analyzer != nil {
		s.Analyzer = p.analyzer.Stats()
	}
	if p.executor != nil {
		s.Portfolio = p.executor.Snapshot(now)
	}
	if p.ledger != nil {
		s.Ledger = p.ledger.Summary(now, 24*time.Hour)
	}
	if p.normalizer != nil {
		s.RejectCounts = p.normalizer.RejectSummary()
	}
	return &s
}

func ack(id string) Response { return Response{CorrelationId: id, Ok: true} }

func errResp(id, reason string) Response {
	return Response{CorrelationId: id, Ok: false, Reason: reason}
}
