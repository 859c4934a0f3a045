package upload

import "fmt"

// Plan splits an object of Size bytes into fixed ChunkSize pieces;
// only the last one may be shorter.
type Plan struct {
	Size       int64
	ChunkSize  int64
	ChunkCount int
}

func NewPlan(size, chunkSize int64) (Plan, error) {
	if chunkSize <= 0 {
		return Plan{}, invalid("chunk size must be positive")
	}
	if size < 0 {
		return Plan{}, invalid("size must not be negative")
	}
	return Plan{
		Size:       size,
		ChunkSize:  chunkSize,
		ChunkCount: int((size + chunkSize - 1) / chunkSize),
	}, nil
}

func (p Plan) InRange(index int) bool {
	return index >= 0 && index < p.ChunkCount
}

func (p Plan) Offset(index int) int64 {
	return int64(index) * p.ChunkSize
}

// ChunkLen panics on an index outside the plan
func (p Plan) ChunkLen(index int) int64 {
	if !p.InRange(index) {
		panic(fmt.Sprintf("chunk %d outside plan of %d", index, p.ChunkCount))
	}
	if index == p.ChunkCount-1 {
		return p.Size - p.ChunkSize*int64(p.ChunkCount-1)
	}
	return p.ChunkSize
}
