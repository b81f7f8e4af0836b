// Package networkio implements the inter-worker partition channel: a
// network source/sink pair that carries tuple buffers between pipelines
// placed on different workers, with upstream-backup replay on reconnect
// and an event-only reverse channel for epoch acks.
package networkio

// Partition identifies one inter-worker channel: a producer pipeline at
// SenderLocation feeding a consumer pipeline at ReceiverLocation, scoped
// to one operator's subplan. Two Partition values with the same fields
// name the same logical channel regardless of which side constructs
// them.
type Partition struct {
	OperatorID       uint64
	SubplanID        uint64
	SenderLocation   string
	ReceiverLocation string
}
