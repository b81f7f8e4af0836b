// Package pipeline implements the per-query execution unit: a compiled
// stage wrapped in a Created/Running/Stopped/Failed state machine, with
// fan-in reference counting over reconfiguration messages so a pipeline
// only tears down once every one of its producers has signalled
// end-of-stream.
package pipeline

import (
	"sync/atomic"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

var mon = monkit.Package()

// Status is a pipeline's lifecycle state.
type Status int32

const (
	Created Status = iota
	Running
	Stopped
	Failed
)

func (s Status) String() string {
	switch s {
	case Created:
		return "Created"
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ExecutionResult reports the outcome of one Execute call.
type ExecutionResult int

const (
	Ok ExecutionResult = iota
	Finished
	ExecutionError
)

// Stage is the compiled operator chain a Pipeline drives. It is
// produced by the query compiler; Pipeline only sequences its
// lifecycle.
type Stage interface {
	Execute(buf *tuplebuf.Buffer) (ExecutionResult, error)
	Setup() error
	StageStart() error
	StageStop() error
}

// Pipeline is one compiled stage plus its lifecycle state machine and
// fan-in reconfiguration accounting.
type Pipeline struct {
	ID      uint64
	QueryID uint64

	stage      Stage
	handlers   []OperatorHandler
	successors []Successor
	log        *zap.Logger

	status          int32 // Status, atomic
	activeProducers int32 // fan-in count, atomic
}

// New builds a pipeline around stage, with the given operator handlers
// (started/stopped alongside the pipeline) and successors (which
// receive every reconfiguration message this pipeline forwards).
func New(id, queryID uint64, stage Stage, handlers []OperatorHandler, successors []Successor, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		ID:         id,
		QueryID:    queryID,
		stage:      stage,
		handlers:   handlers,
		successors: successors,
		log:        log,
		status:     int32(Created),
	}
}

// Status returns the pipeline's current lifecycle state.
func (p *Pipeline) Status() Status { return Status(atomic.LoadInt32(&p.status)) }

// IsRunning reports whether the pipeline is currently able to execute.
func (p *Pipeline) IsRunning() bool { return p.Status() == Running }

// Execute runs one input buffer through the stage, if running.
func (p *Pipeline) Execute(buf *tuplebuf.Buffer) (ExecutionResult, error) {
	defer mon.Task()(nil)(nil)

	switch p.Status() {
	case Running:
		return p.stage.Execute(buf)
	case Stopped:
		return Finished, nil
	default:
		p.log.Error("execute called on non-running pipeline",
			zap.Uint64("pipeline_id", p.ID), zap.String("status", p.Status().String()))
		return ExecutionError, edgeerrs.StateInvariant.New("pipeline %d is not running (status=%s)", p.ID, p.Status())
	}
}

// Start transitions Created -> Running: it seeds the fan-in count to
// numProducers, starts every operator handler, starts the stage, and
// broadcasts an Initialize reconfiguration to every successor. Returns
// false if the pipeline was not in Created state (a no-op, not an
// error — matches a pipeline that may be started exactly once by
// whichever of its several predecessors gets there first).
func (p *Pipeline) Start(numProducers int32) (bool, error) {
	if numProducers <= 0 {
		return false, edgeerrs.ConfigInvalid.New("pipeline %d: numProducers must be positive, got %d", p.ID, numProducers)
	}
	if !atomic.CompareAndSwapInt32(&p.status, int32(Created), int32(Running)) {
		return false, nil
	}
	atomic.StoreInt32(&p.activeProducers, numProducers)

	if err := p.stage.Setup(); err != nil {
		return false, edgeerrs.StateInvariant.Wrap(err)
	}
	for _, h := range p.handlers {
		if err := h.Start(); err != nil {
			return false, edgeerrs.StateInvariant.Wrap(err)
		}
	}
	if err := p.stage.StageStart(); err != nil {
		return false, edgeerrs.StateInvariant.Wrap(err)
	}

	init := Message{Type: Initialize, UserData: numProducers}
	if err := p.broadcast(init); err != nil {
		return false, err
	}
	p.log.Debug("pipeline started", zap.Uint64("pipeline_id", p.ID), zap.Int32("producers", numProducers))
	return true, nil
}

// Stop transitions Running -> Stopped, stopping the stage. If the
// pipeline was already stopped it returns true without stopping the
// stage again; in any other non-running state it returns false (not an
// error).
func (p *Pipeline) Stop() (bool, error) {
	if !atomic.CompareAndSwapInt32(&p.status, int32(Running), int32(Stopped)) {
		return p.Status() == Stopped, nil
	}
	if err := p.stage.StageStop(); err != nil {
		return false, edgeerrs.StateInvariant.Wrap(err)
	}
	return true, nil
}

// Fail transitions Running -> Failed.
func (p *Pipeline) Fail() bool {
	return atomic.CompareAndSwapInt32(&p.status, int32(Running), int32(Failed))
}

// Reconfigure handles one incoming reconfiguration message. Every
// handler sees every message via Reconfigure (most only act on
// Initialize); for an EoS variant, the fan-in count is decremented
// exactly once, and only the caller whose decrement brings it to zero
// runs Stop/PostReconfigurationCallback on every handler and forwards
// the message to every successor.
func (p *Pipeline) Reconfigure(msg Message) error {
	for _, h := range p.handlers {
		if err := h.Reconfigure(msg); err != nil {
			return err
		}
	}

	if !msg.Type.isEoS() {
		return nil
	}

	remaining := atomic.AddInt32(&p.activeProducers, -1)
	if remaining < 0 {
		// a duplicate EoS from a producer that already reported: every
		// producer must signal EoS exactly once, so this would indicate
		// a bug upstream, not a legitimate retry.
		atomic.AddInt32(&p.activeProducers, 1)
		return edgeerrs.ProtocolViolation.New("pipeline %d: received more EoS messages than producers", p.ID)
	}
	if remaining > 0 {
		p.log.Debug("reconfiguration: fan-in not yet drained",
			zap.Uint64("pipeline_id", p.ID), zap.Int32("remaining", remaining))
		return nil
	}

	if msg.Type == FailEoS {
		p.Fail()
	} else {
		if _, err := p.Stop(); err != nil {
			return err
		}
	}
	for _, h := range p.handlers {
		if err := h.Stop(msg.Type); err != nil {
			return err
		}
	}
	for _, h := range p.handlers {
		if err := h.PostReconfigurationCallback(msg); err != nil {
			return err
		}
	}
	return p.broadcast(msg)
}

func (p *Pipeline) broadcast(msg Message) error {
	for _, s := range p.successors {
		if err := s.Reconfigure(msg); err != nil {
			return err
		}
	}
	return nil
}
