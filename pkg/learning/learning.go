// Package learning implements the Learning Loop (C10): an in-process,
// one-way subscriber over Score events and user feedback that promotes
// KnowledgePatterns and periodically transfers them across agents (spec
// §4.10). The Learning Loop never writes AgentMetrics directly — that
// remains the Custody Engine's exclusive path (spec §8 invariant 6).
//
// Grounded on the teacher's `pkg/events.ConnectionManager` subscribe/
// broadcast shape, collapsed to a single process (no network hop, no
// per-client fan-out): publishers push onto a handful of buffered channels,
// one subscriber goroutine drains them, using the same stopCh/sync.Once/
// sync.WaitGroup shutdown idiom as `pkg/queue/worker.go`.
package learning

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aion-systems/aion-core/pkg/config"
	"github.com/aion-systems/aion-core/pkg/model"
	"github.com/aion-systems/aion-core/pkg/store"
)

// busBuffer bounds how many unconsumed events the bus holds before Publish
// blocks the caller; generous enough that a slow Loop iteration doesn't
// stall a custody cycle under normal operation.
const busBuffer = 256

// ScoreEvent is published by the Custody Engine after every scored custody
// cycle (spec §4.10: "Subscribes to Score events").
type ScoreEvent struct {
	AgentKind model.AgentKind
	Category  model.Category
	Response  model.Response
	Score     model.Score
}

// FeedbackKind is a human reviewer's verdict on a response or proposal.
type FeedbackKind string

const (
	FeedbackApproved FeedbackKind = "approved"
	FeedbackRejected FeedbackKind = "rejected"
	FeedbackEdited   FeedbackKind = "edited"
)

// FeedbackEvent is published by the HTTP Surface when a human reviews a
// response or proposal (spec §4.10).
type FeedbackEvent struct {
	AgentKind model.AgentKind
	TargetID  string // the response or proposal id the feedback concerns
	Feedback  FeedbackKind
}

// learningValueFor maps a feedback kind to its signed contribution, per spec
// §4.10 exactly.
func learningValueFor(k FeedbackKind) float64 {
	switch k {
	case FeedbackApproved:
		return 0.1
	case FeedbackRejected:
		return -0.1
	case FeedbackEdited:
		return 0.05
	default:
		return 0
	}
}

// Bus is the one-way, publish-only-from-outside event channel pair the
// Learning Loop subscribes to. Publish is non-blocking up to busBuffer
// events; beyond that, publishers apply backpressure rather than silently
// dropping events, since a dropped Score event is a dropped learning signal.
type Bus struct {
	scores    chan ScoreEvent
	feedbacks chan FeedbackEvent
}

// NewBus constructs a Bus with the default buffer size.
func NewBus() *Bus {
	return &Bus{
		scores:    make(chan ScoreEvent, busBuffer),
		feedbacks: make(chan FeedbackEvent, busBuffer),
	}
}

// PublishScore hands a ScoreEvent to the Learning Loop. Blocks only if the
// buffer is full; ctx cancellation unblocks the caller without publishing.
func (b *Bus) PublishScore(ctx context.Context, ev ScoreEvent) {
	select {
	case b.scores <- ev:
	case <-ctx.Done():
	}
}

// ScoreSinkAdapter adapts a Bus to the Custody Engine's ScoreSink capability
// (spec §4.10: "Subscribes to Score events"), translating the Engine's
// positional score-commit call into a ScoreEvent publish. Kept as its own
// type rather than a second method on Bus so Bus's own ScoreEvent-shaped
// PublishScore (used directly by tests and any other publisher) keeps its
// single signature.
type ScoreSinkAdapter struct {
	bus *Bus
}

// NewScoreSinkAdapter wraps bus for wiring into custody.Engine.SetScoreSink.
func NewScoreSinkAdapter(bus *Bus) ScoreSinkAdapter {
	return ScoreSinkAdapter{bus: bus}
}

// PublishScore implements custody.ScoreSink by structural typing.
func (a ScoreSinkAdapter) PublishScore(ctx context.Context, kind model.AgentKind, category model.Category, response model.Response, score model.Score) {
	a.bus.PublishScore(ctx, ScoreEvent{AgentKind: kind, Category: category, Response: response, Score: score})
}

// PublishFeedback hands a FeedbackEvent to the Learning Loop.
func (b *Bus) PublishFeedback(ctx context.Context, ev FeedbackEvent) {
	select {
	case b.feedbacks <- ev:
	case <-ctx.Done():
	}
}

// Clock abstracts "now" for pattern timestamps and the transfer ticker.
type Clock interface {
	Now() time.Time
}

// Loop is the Learning Loop (C10).
type Loop struct {
	store store.Store
	cfg   *config.Manager
	clock Clock
	bus   *Bus
	log   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLoop constructs a Learning Loop subscribed to bus.
func NewLoop(st store.Store, cfg *config.Manager, clk Clock, bus *Bus) *Loop {
	return &Loop{
		store:  st,
		cfg:    cfg,
		clock:  clk,
		bus:    bus,
		log:    slog.Default().With("component", "learning_loop"),
		stopCh: make(chan struct{}),
	}
}

// Start launches the event-consuming goroutine. Safe to call once.
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
}

// Stop signals the event loop to exit and waits for it to drain, the same
// stopCh/sync.Once/sync.WaitGroup idiom as pkg/queue/worker.go's Worker.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stopCh:
			return
		case ev := <-l.bus.scores:
			l.handleScore(context.Background(), ev)
		case ev := <-l.bus.feedbacks:
			l.handleFeedback(context.Background(), ev)
		}
	}
}

// handleScore implements spec §4.10's pattern promotion: high-scoring
// responses become success patterns, low-scoring ones become failure
// patterns. Scores in the middle band promote nothing.
func (l *Loop) handleScore(ctx context.Context, ev ScoreEvent) {
	threshold := l.cfg.Get().PassThresholdFor(ev.Category)

	var label model.PatternLabel
	switch {
	case ev.Score.Overall >= 85:
		label = model.LabelSuccess
	case ev.Score.Overall < threshold-10:
		label = model.LabelFailure
	default:
		return
	}

	pattern := model.KnowledgePattern{
		OwnerKind: ev.AgentKind,
		Label:     label,
		Features: map[string]any{
			"response_id": ev.Response.ID,
			"category":    string(ev.Category),
			"feedback":    ev.Score.FeedbackText,
		},
		Effectiveness: ev.Score.Overall,
		CreatedAt:     l.clock.Now(),
	}
	if err := l.store.KnowledgeInsert(ctx, pattern); err != nil {
		l.log.Error("promote pattern", "agent_kind", ev.AgentKind, "error", err)
	}
}

// handleFeedback implements spec §4.10's user-feedback mapping. The
// Knowledge Store is append-only (spec §4.9), so feedback is recorded as its
// own pattern deposit referencing the reviewed target rather than a
// read-modify-write of an existing row.
func (l *Loop) handleFeedback(ctx context.Context, ev FeedbackEvent) {
	value := clamp(learningValueFor(ev.Feedback), -1, 1)
	label := model.LabelSuccess
	if value < 0 {
		label = model.LabelFailure
	}

	pattern := model.KnowledgePattern{
		OwnerKind: ev.AgentKind,
		Label:     label,
		Features: map[string]any{
			"target_id":      ev.TargetID,
			"feedback_kind":  string(ev.Feedback),
			"learning_value": value,
		},
		Effectiveness: (value + 1) * 50, // rescale [-1,1] onto the 0..100 effectiveness axis
		CreatedAt:     l.clock.Now(),
	}
	if err := l.store.KnowledgeInsert(ctx, pattern); err != nil {
		l.log.Error("record feedback pattern", "agent_kind", ev.AgentKind, "error", err)
	}
}

// RunTransferJob executes one Cross-AI transfer pass (spec §4.10): for every
// (source, target) pair with a positive affinity weight, copy the source's
// top-k highest-effectiveness patterns into the target's ownership with
// effectiveness scaled by TransferDecay × the pair's affinity weight.
func (l *Loop) RunTransferJob(ctx context.Context) error {
	cfg := l.cfg.Get()
	for _, src := range model.AllAgentKinds {
		targets := cfg.AffinityMatrix[src]
		top, err := l.store.KnowledgeQuery(ctx, &src, nil, cfg.Learning.TransferTopK)
		if err != nil {
			return fmt.Errorf("learning: transfer query for %s: %w", src, err)
		}
		for dst, weight := range targets {
			if weight <= 0 {
				continue
			}
			for _, p := range top {
				transferred := model.KnowledgePattern{
					OwnerKind:     dst,
					Label:         p.Label,
					Features:      copyFeatures(p.Features, src),
					Effectiveness: p.Effectiveness * cfg.Learning.TransferDecay * weight,
					CreatedAt:     l.clock.Now(),
				}
				if err := l.store.KnowledgeInsert(ctx, transferred); err != nil {
					return fmt.Errorf("learning: transfer insert %s->%s: %w", src, dst, err)
				}
			}
		}
	}
	return nil
}

func copyFeatures(src map[string]any, transferredFrom model.AgentKind) map[string]any {
	out := make(map[string]any, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	out["transferred_from"] = string(transferredFrom)
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
