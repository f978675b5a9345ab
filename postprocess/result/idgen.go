package result

import "sync/atomic"

// IDGenerator hands out incremental ID numbers, safe for concurrent use
type IDGenerator struct {
	id atomic.Int64
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// GetNext returns the next incremental number, starting at 1
func (id *IDGenerator) GetNext() int64 {
	return id.id.Add(1)
}
