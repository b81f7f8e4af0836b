package hashjoin

import (
	"bytes"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/join"
	"edgeflow.io/edgeflow/pkg/recordschema"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

var mon = monkit.Package()

// Handler owns every open window for one compiled hash-join operator: it
// is the Go equivalent of the original's StreamHashJoinOperatorHandler —
// window creation, build-side population, probing, and at-most-once
// window deletion all go through it.
type Handler struct {
	id            uint64
	leftSchema    *recordschema.Schema
	rightSchema   *recordschema.Schema
	outputSchema  *recordschema.Schema
	outputLayout  *recordschema.RowLayout
	leftKeyField  string
	rightKeyField string
	numPartitions int
	originID      uint64
	log           *zap.Logger

	// WithDeletion mirrors the original's withDeletion flag: when false,
	// a fully-probed partition still reports finished internally but the
	// window is never auto-deleted (used when a downstream replay still
	// needs the build side retained).
	WithDeletion bool

	mu      sync.RWMutex
	windows map[uint64]*Window

	nextSeq uint64
}

// NewHandler builds a hash-join handler. outputSchema must be
// {start_ts, end_ts, key, <leftSchema fields verbatim>, <rightSchema
// fields verbatim>}.
func NewHandler(id uint64, leftSchema, rightSchema, outputSchema *recordschema.Schema, leftKeyField, rightKeyField string, numPartitions int, originID uint64, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		id:            id,
		leftSchema:    leftSchema,
		rightSchema:   rightSchema,
		outputSchema:  outputSchema,
		outputLayout:  recordschema.NewRowLayout(outputSchema),
		leftKeyField:  leftKeyField,
		rightKeyField: rightKeyField,
		numPartitions: numPartitions,
		originID:      originID,
		log:           log,
		WithDeletion:  true,
		windows:       make(map[uint64]*Window),
	}
}

// CreateWindow registers a new window, returning an error if its ID
// already exists.
func (h *Handler) CreateWindow(windowID, start, end uint64) (*Window, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.windows[windowID]; ok {
		return nil, edgeerrs.StateInvariant.New("window %d already exists", windowID)
	}
	w := NewWindow(windowID, start, end, h.numPartitions)
	h.windows[windowID] = w
	return w, nil
}

// Window looks up a window by ID.
func (h *Handler) Window(windowID uint64) (*Window, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	w, ok := h.windows[windowID]
	return w, ok
}

// DeleteWindow removes a window's state. Safe to call more than once.
func (h *Handler) DeleteWindow(windowID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.windows, windowID)
}

// Append inserts a raw row into the named window/partition/side's
// partition table, extracting its join key from the side's schema.
func (h *Handler) Append(windowID uint64, side BuildSide, partitionID int, record []byte) error {
	w, ok := h.Window(windowID)
	if !ok {
		return edgeerrs.StateInvariant.New("no such window %d", windowID)
	}
	var schema *recordschema.Schema
	var keyField string
	var table *PartitionTable
	switch side {
	case Left:
		schema, keyField, table = h.leftSchema, h.leftKeyField, w.Left
	case Right:
		schema, keyField, table = h.rightSchema, h.rightKeyField, w.Right
	}
	off, ok := schema.Offset(keyField)
	if !ok {
		return edgeerrs.ConfigInvalid.New("schema missing key field %q", keyField)
	}
	width := 0
	for _, f := range schema.Fields() {
		if f.Name == keyField {
			width = f.Type.Width()
			break
		}
	}
	key := append([]byte(nil), record[off:off+width]...)
	table.Append(partitionID, key, record)
	return nil
}

type outBuf struct {
	buf    *tuplebuf.Buffer
	tuples int
}

// Probe scans one (window, partition) pair: if either side has no pages
// in this partition the partition is immediately marked finished (and
// the window deleted if it was the last one outstanding); otherwise
// every left tuple is compared against every right tuple whose page's
// Bloom filter does not already rule the key out, matching records are
// written to the output buffer, and the partition is marked finished once
// the scan completes (deleting the window when it was the last one
// outstanding and WithDeletion is set).
func (h *Handler) Probe(windowID uint64, partitionID int, alloc join.BufferAllocator, emit join.Emitter) (int, error) {
	defer mon.Task()(nil)(nil)

	w, ok := h.Window(windowID)
	if !ok {
		return 0, edgeerrs.StateInvariant.New("no such window %d", windowID)
	}

	leftPages := w.Left.NumPages(partitionID)
	rightPages := w.Right.NumPages(partitionID)
	if leftPages == 0 || rightPages == 0 {
		if w.MarkPartitionFinished() && h.WithDeletion {
			h.DeleteWindow(windowID)
		}
		h.log.Debug("partition has no tuples on one side, marking finished",
			zap.Uint64("handler_id", h.id), zap.Uint64("window_id", windowID), zap.Int("partition", partitionID))
		return 0, nil
	}

	out := &outBuf{buf: alloc.Acquire()}
	emitted := 0

	for lp := 0; lp < leftPages; lp++ {
		leftPage := w.Left.Page(partitionID, lp)
		for li := 0; li < leftPage.Len(); li++ {
			leftKey := leftPage.KeyAt(li)
			leftRecord := leftPage.RecordAt(li)

			for rp := 0; rp < rightPages; rp++ {
				rightPage := w.Right.Page(partitionID, rp)
				if rightPage.Len() == 0 {
					continue
				}
				if !rightPage.MayContain(leftKey) {
					continue
				}
				for ri := 0; ri < rightPage.Len(); ri++ {
					if !bytes.Equal(leftKey, rightPage.KeyAt(ri)) {
						continue
					}
					if out.tuples+1 > out.buf.CapacityBytes()/h.outputSchema.RecordSizeBytes() {
						if err := h.dispatch(out, w.End, emit); err != nil {
							return emitted, err
						}
						out.buf = alloc.Acquire()
						out.tuples = 0
					}
					if err := h.writeResultRecord(out, leftKey, w.Start, w.End, leftRecord, rightPage.RecordAt(ri)); err != nil {
						return emitted, err
					}
					emitted++
				}
			}
		}
	}

	if out.buf.NumberOfTuples() > 0 {
		if err := h.dispatch(out, w.End, emit); err != nil {
			return emitted, err
		}
	} else {
		out.buf.Release()
	}

	if w.MarkPartitionFinished() && h.WithDeletion {
		h.DeleteWindow(windowID)
	}

	return emitted, nil
}

func (h *Handler) writeResultRecord(out *outBuf, key []byte, start, end uint64, left, right []byte) error {
	row := out.tuples
	buf := out.buf.Bytes()

	if err := h.outputLayout.WriteUint64(buf, row, "start_ts", start); err != nil {
		return err
	}
	if err := h.outputLayout.WriteUint64(buf, row, "end_ts", end); err != nil {
		return err
	}
	keyOff, ok := h.outputSchema.Offset("key")
	if !ok {
		return edgeerrs.ConfigInvalid.New("output schema missing field \"key\"")
	}
	dstRow := h.outputLayout.RowAt(buf, row)
	copy(dstRow[keyOff:keyOff+len(key)], key)

	if err := copySideFields(dstRow, h.outputSchema, h.leftSchema, left); err != nil {
		return err
	}
	if err := copySideFields(dstRow, h.outputSchema, h.rightSchema, right); err != nil {
		return err
	}

	out.tuples++
	out.buf.SetNumberOfTuples(uint64(out.tuples))
	return nil
}

func copySideFields(dstRow []byte, dstSchema, srcSchema *recordschema.Schema, srcRow []byte) error {
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

func (h *Handler) dispatch(out *outBuf, watermarkTS uint64, emit join.Emitter) error {
	if out.tuples == 0 {
		out.buf.Release()
		return nil
	}
	out.buf.SetOriginID(h.originID)
	out.buf.SetWatermarkTS(watermarkTS)
	out.buf.SetSequenceNumber(atomic.AddUint64(&h.nextSeq, 1))
	if err := emit(out.buf); err != nil {
		return edgeerrs.Io.Wrap(err)
	}
	return nil
}
