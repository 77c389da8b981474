// Package core runs one conversation turn: reasoning over the bounded history
// and retrieved evidence, routing, the optional facility lookup and the
// templated answer.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medassist/internal/logger"
	"medassist/internal/memory"
	"medassist/internal/metrics"
	"medassist/pkg"
)

// HistoryPreparer returns the bounded history view for a session.
type HistoryPreparer interface {
	Prepare(ctx context.Context, sessionID string) (memory.View, error)
}

// Retriever returns the k passages closest to query.
type Retriever interface {
	Query(ctx context.Context, query string, k int) ([]string, error)
}

// Assessor produces the structured assessment for one message.
type Assessor interface {
	Assess(ctx context.Context, sessionID, message string, view memory.View, evidence []string) pkg.Assessment
}

// FacilityFinder recommends a facility for an assessment in a city.  Failures
// come back error-tagged.
type FacilityFinder interface {
	RecommendFacility(ctx context.Context, city string, a *pkg.Assessment) pkg.FacilityResult
}

// PipelineState is the per-turn record threaded through the stages.  City is
// nil when unknown.  Facility is set only on the facility branch.
type PipelineState struct {
	SessionID  string
	Message    string
	City       *string
	Assessment *pkg.Assessment
	Facility   *pkg.FacilityResult
	Final      string
	Stage      Stage
}

var errModelUnavailable = errors.New("model request failed")

type stageFunc func(ctx context.Context, st *PipelineState) (Stage, error)

// Orchestrator drives a turn through the stage transition table.
type Orchestrator struct {
	history    HistoryPreparer
	retriever  Retriever
	reasoner   Assessor
	facilities FacilityFinder
	topK       int
	log        *logger.Logger

	stages map[Stage]stageFunc
}

// NewOrchestrator wires the pipeline.  topK is the number of passages
// retrieved per turn.
func NewOrchestrator(history HistoryPreparer, retriever Retriever, reasoner Assessor, facilities FacilityFinder, topK int, log *logger.Logger) *Orchestrator {
	o := &Orchestrator{
		history:    history,
		retriever:  retriever,
		reasoner:   reasoner,
		facilities: facilities,
		topK:       topK,
		log:        log.With("component", "orchestrator"),
	}
	o.stages = map[Stage]stageFunc{
		StageReasoning:      o.reason,
		StageRouting:        o.route,
		StageClarification:  o.clarify,
		StageFacilityLookup: o.lookupFacility,
		StageSynthesis:      o.synthesize,
	}
	return o
}

// Run executes one pass of the pipeline and returns the final message.  It
// never fails: any error or panic inside a stage becomes the apology.
func (o *Orchestrator) Run(ctx context.Context, sessionID, message string, city *string) string {
	st := &PipelineState{SessionID: sessionID, Message: message, City: city, Stage: StageReasoning}
	start := time.Now()
	defer func() { metrics.TurnDuration.Observe(time.Since(start).Seconds()) }()

	if err := o.drive(ctx, st); err != nil {
		o.log.Error("turn failed", "session_id", sessionID, "stage", st.Stage, "error", err)
		metrics.TurnsTotal.WithLabelValues("failed").Inc()
		return ApologyMessage
	}
	return st.Final
}

func (o *Orchestrator) drive(ctx context.Context, st *PipelineState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in stage %s: %v", st.Stage, r)
		}
	}()
	for st.Stage != StageDone {
		handle, ok := o.stages[st.Stage]
		if !ok {
			return fmt.Errorf("no transition from stage %q", st.Stage)
		}
		next, err := handle(ctx, st)
		if err != nil {
			return err
		}
		st.Stage = next
	}
	return nil
}

func (o *Orchestrator) reason(ctx context.Context, st *PipelineState) (Stage, error) {
	view, err := o.history.Prepare(ctx, st.SessionID)
	if err != nil {
		return "", err
	}
	evidence, err := o.retriever.Query(ctx, st.Message, o.topK)
	if err != nil {
		return "", fmt.Errorf("retrieve evidence: %w", err)
	}
	a := o.reasoner.Assess(ctx, st.SessionID, st.Message, view, evidence)
	st.Assessment = &a
	// an unreachable model leaves nothing to route on; undecodable replies
	// still reach synthesis
	if a.Error == ErrModelRequest {
		return "", errModelUnavailable
	}
	return StageRouting, nil
}

func (o *Orchestrator) route(_ context.Context, st *PipelineState) (Stage, error) {
	next := Route(st.Message, st.Assessment.Severity(), st.City != nil)
	o.log.Debug("routed", "session_id", st.SessionID, "severity", st.Assessment.Severity(), "next", next)
	metrics.TurnsTotal.WithLabelValues(string(next)).Inc()
	return next, nil
}

func (o *Orchestrator) clarify(_ context.Context, st *PipelineState) (Stage, error) {
	st.Final = ClarificationMessage
	return StageDone, nil
}

func (o *Orchestrator) lookupFacility(ctx context.Context, st *PipelineState) (Stage, error) {
	if st.City == nil {
		return "", errors.New("facility lookup without a city")
	}
	f := o.facilities.RecommendFacility(ctx, *st.City, st.Assessment)
	st.Facility = &f
	return StageSynthesis, nil
}

func (o *Orchestrator) synthesize(_ context.Context, st *PipelineState) (Stage, error) {
	st.Final = Synthesize(st.Assessment, st.Facility)
	return StageDone, nil
}
