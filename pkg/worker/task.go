// Package worker implements the worker-thread scheduling layer: a
// worker process runs a pool of worker threads executing two kinds of
// task — buffer delivery and reconfiguration — under one of two pool
// configurations, Dynamic (one shared queue) or Static (a fixed
// sub-queue per thread).
package worker

import (
	"edgeflow.io/edgeflow/pkg/pipeline"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

// Kind distinguishes the two task shapes a pool ever runs.
type Kind int

const (
	// BufferDelivery delivers one input buffer to one pipeline.
	BufferDelivery Kind = iota
	// Reconfiguration delivers one reconfiguration message to one
	// pipeline.
	Reconfiguration
)

// Task is the unit of work a pool schedules onto a worker thread.
type Task struct {
	Kind     Kind
	Pipeline *pipeline.Pipeline
	Buffer   *tuplebuf.Buffer   // set when Kind == BufferDelivery
	Reconfig pipeline.Message   // set when Kind == Reconfiguration

	// PartitionKey selects which Static sub-queue a task is pinned to;
	// ignored by a Dynamic pool. Tasks for the same pipeline should
	// share a PartitionKey so a Static pool preserves per-pipeline
	// ordering.
	PartitionKey uint64
}

// Run executes the task against its pipeline, returning whatever
// execution/reconfiguration error resulted.
func (t Task) Run() error {
	switch t.Kind {
	case BufferDelivery:
		_, err := t.Pipeline.Execute(t.Buffer)
		return err
	case Reconfiguration:
		return t.Pipeline.Reconfigure(t.Reconfig)
	default:
		return nil
	}
}
