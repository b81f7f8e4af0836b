// Package join implements the windowed join/aggregation trigger action:
// the nested-loop variant over per-key slice stores. The
// hash-join probe variant lives in the hashjoin subpackage.
package join

import (
	"sync/atomic"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/recordschema"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
	"edgeflow.io/edgeflow/pkg/window"
)

var mon = monkit.Package()

// Type selects the join predicate applied across left/right keys.
type Type int

const (
	// InnerJoin only pairs matching keys.
	InnerJoin Type = iota
	// CartesianProduct pairs every left key with every right key
	// regardless of equality.
	CartesianProduct
)

// Key is the join key type. The windowed join operates over uint64 keys
// (the common case for event/device identifiers in this runtime); a
// different key domain is expected to hash/encode down to uint64 before
// reaching the trigger action, matching how the original's templated
// KeyType is monomorphized per compiled query.
type Key = uint64

// BufferAllocator is the subset of tuplebuf.Pool the trigger action
// needs: acquire an output buffer and know its capacity.
type BufferAllocator interface {
	Acquire() *tuplebuf.Buffer
	BufferSize() int
}

// Emitter dispatches a sealed output buffer downstream.
type Emitter func(buf *tuplebuf.Buffer) error

// TriggerAction is the nested-loop join trigger bound to one compiled
// join operator: it owns the output schema/row layout, the join type,
// the window descriptor, and its own output sequencer. ID is kept as a
// plain field, never shadowed by a loop variable, so every log/trace
// line names the correct handler.
type TriggerAction struct {
	id           uint64
	joinType     Type
	windowType   window.Descriptor
	leftSchema   *recordschema.Schema
	rightSchema  *recordschema.Schema
	outputSchema *recordschema.Schema
	outputLayout *recordschema.RowLayout
	originID     uint64
	log          *zap.Logger

	nextSeq uint64
}

// New builds a trigger action. outputSchema must be {start_ts, end_ts,
// key, <leftSchema fields verbatim>, <rightSchema fields verbatim>} in
// that order — the shape recordschema.Concat produces once the caller
// has prefixed the window/key columns. Field names across leftSchema
// and rightSchema must be distinct.
func New(id uint64, joinType Type, wt window.Descriptor, leftSchema, rightSchema, outputSchema *recordschema.Schema, originID uint64, log *zap.Logger) *TriggerAction {
	if log == nil {
		log = zap.NewNop()
	}
	return &TriggerAction{
		id:           id,
		joinType:     joinType,
		windowType:   wt,
		leftSchema:   leftSchema,
		rightSchema:  rightSchema,
		outputSchema: outputSchema,
		outputLayout: recordschema.NewRowLayout(outputSchema),
		originID:     originID,
		log:          log,
	}
}

func (t *TriggerAction) String() string {
	return "nestedLoopJoinTriggerAction " + zapUint(t.id)
}

func zapUint(v uint64) string {
	// small helper so String() does not need fmt for a single value on a
	// path that is only ever hit from tests/debug tooling.
	if v == 0 {
		return "0"
	}
	digits := make([]byte, 0, 20)
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

type outBuf struct {
	buf    *tuplebuf.Buffer
	tuples int
}

// DoAction closes every window between lastWatermark and
// currentWatermark over leftState/rightState and emits joined records
// downstream. It returns the number of output records
// emitted.
//
// Failure semantics: any allocation or dispatch failure aborts the
// trigger immediately; slice removal (the only state mutation the
// trigger performs) only ever runs after a key's emissions have all
// succeeded, so a failed trigger leaves state consistent with whatever
// was already, successfully, dispatched.
func (t *TriggerAction) DoAction(leftState, rightState *window.KeyedState, currentWatermark, lastWatermark uint64, alloc BufferAllocator, emit Emitter) (int, error) {
	defer mon.Task()(nil)(nil)

	if currentWatermark <= lastWatermark {
		// no window closes; must not mutate anything.
		return 0, nil
	}

	out := &outBuf{buf: alloc.Acquire()}
	totalEmitted := 0

	leftKeys := leftState.Keys()
	for _, lk := range leftKeys {
		leftKey := lk.(Key)
		rightKeys := rightState.Keys()
		for _, rk := range rightKeys {
			rightKey := rk.(Key)

			if t.joinType == InnerJoin && leftKey != rightKey {
				continue
			}

			emitted, err := t.joinWindows(leftKey, leftState.StoreFor(leftKey), rightState.StoreFor(rightKey), out, currentWatermark, lastWatermark, alloc, emit)
			if err != nil {
				return totalEmitted, err
			}
			totalEmitted += emitted
		}
	}

	if out.buf.NumberOfTuples() > 0 {
		if err := t.dispatch(out, currentWatermark, emit); err != nil {
			return totalEmitted, err
		}
	} else {
		out.buf.Release()
	}

	t.log.Debug("join handler flushed records", zap.Uint64("handler_id", t.id), zap.Int("emitted", totalEmitted))
	return totalEmitted, nil
}

// joinWindows performs the algorithm  step 2 for a single
// (leftKey, rightKey) pair: both stores' locks are taken left-then-right
// in that fixed order (the redesign fix for the original's duplicated
// leftStore->mutex() bug), windows closed by the advance are computed
// once, and matching slices (paired by equal [start,end) on both sides)
// are cross-joined in (slice-index, left-position, right-position)
// order.
func (t *TriggerAction) joinWindows(key Key, leftStore, rightStore *window.Store, out *outBuf, currentWatermark, lastWatermark uint64, alloc BufferAllocator, emit Emitter) (int, error) {
	leftStore.Lock()
	defer leftStore.Unlock()
	rightStore.Lock()
	defer rightStore.Unlock()

	if leftStore.Empty() || rightStore.Empty() {
		return 0, nil
	}

	windows := t.windowType.TriggerWindows(lastWatermark, currentWatermark)
	if len(windows) == 0 {
		return 0, nil
	}

	leftSlices := leftStore.Slices()
	rightSlices := rightStore.Slices()

	emitted := 0
	var largestClosed uint64

	for _, w := range windows {
		if w.End > largestClosed {
			largestClosed = w.End
		}
		for sliceIdx, ls := range leftSlices {
			if !(w.Start <= ls.StartTs && w.End >= ls.EndTs) {
				continue
			}
			if sliceIdx >= len(rightSlices) {
				continue
			}
			rs := rightSlices[sliceIdx]
			if ls.StartTs != rs.StartTs || ls.EndTs != rs.EndTs {
				continue
			}

			for _, lrec := range ls.Records {
				for _, rrec := range rs.Records {
					if out.tuples+1 > out.buf.CapacityBytes()/t.outputSchema.RecordSizeBytes() {
						if err := t.dispatch(out, currentWatermark, emit); err != nil {
							return emitted, err
						}
						out.buf = alloc.Acquire()
						out.tuples = 0
					}
					if err := t.writeResultRecord(out, key, w.Start, w.End, lrec, rrec); err != nil {
						return emitted, err
					}
					emitted++
				}
			}
		}
	}

	slide := t.windowType.Slide
	cutoff := uint64(0)
	if largestClosed > slide {
		cutoff = largestClosed - slide
	}
	leftStore.RemoveSlicesUntil(cutoff)
	rightStore.RemoveSlicesUntil(cutoff)

	return emitted, nil
}

// writeResultRecord writes {start_ts, end_ts, key, <left fields>, <right
// fields>} into the output buffer at the next free row. left/right are
// raw rows laid out per leftSchema/rightSchema; each of their fields is
// copied verbatim into the identically-named output field.
func (t *TriggerAction) writeResultRecord(out *outBuf, key Key, start, end uint64, left, right window.Record) error {
	row := out.tuples
	buf := out.buf.Bytes()

	if err := t.outputLayout.WriteUint64(buf, row, "start_ts", start); err != nil {
		return err
	}
	if err := t.outputLayout.WriteUint64(buf, row, "end_ts", end); err != nil {
		return err
	}
	if err := t.outputLayout.WriteUint64(buf, row, "key", key); err != nil {
		return err
	}

	dstRow := t.outputLayout.RowAt(buf, row)
	if err := copySideFields(dstRow, t.outputSchema, t.leftSchema, left); err != nil {
		return err
	}
	if err := copySideFields(dstRow, t.outputSchema, t.rightSchema, right); err != nil {
		return err
	}

	out.tuples++
	out.buf.SetNumberOfTuples(uint64(out.tuples))
	return nil
}

// copySideFields copies every field of srcSchema, present verbatim in
// srcRow, into the identically-named field of dstRow (laid out per
// dstSchema).
func copySideFields(dstRow []byte, dstSchema, srcSchema *recordschema.Schema, srcRow window.Record) error {
	for i := 0; i < srcSchema.Len(); i++ {
		field, srcOff := srcSchema.Get(i)
		width := field.Type.Width()
		dstOff, ok := dstSchema.Offset(field.Name)
		if !ok {
			return edgeerrs.ConfigInvalid.New("output schema missing field %q", field.Name)
		}
		copy(dstRow[dstOff:dstOff+width], srcRow[srcOff:srcOff+width])
	}
	return nil
}

func (t *TriggerAction) dispatch(out *outBuf, currentWatermark uint64, emit Emitter) error {
	if out.tuples == 0 {
		out.buf.Release()
		return nil
	}
	out.buf.SetOriginID(t.originID)
	out.buf.SetWatermarkTS(currentWatermark)
	out.buf.SetSequenceNumber(atomic.AddUint64(&t.nextSeq, 1))
	if err := emit(out.buf); err != nil {
		return edgeerrs.Io.Wrap(err)
	}
	return nil
}
