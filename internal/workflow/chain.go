package workflow

import (
	"curator/internal/config"
	"curator/internal/queue"
)

// stageOrder is the workflow state machine: each stage's completion feeds the
// next, terminal at sync.
var stageOrder = []queue.Type{queue.TypeScan, queue.TypeEnrich, queue.TypePublish, queue.TypeSync}

// Chain resolves stage succession with administratively disabled stages
// skipped. A disabled stage is a pass-through, never a dead end: the chain
// keeps walking until it finds an enabled stage or runs off the end.
type Chain struct {
	stages config.Stages
}

// NewChain builds the succession table from the configured stage toggles.
func NewChain(cfg *config.Config) *Chain {
	return &Chain{stages: cfg.Stages}
}

// Enabled reports whether a stage is administratively on.
func (c *Chain) Enabled(stage queue.Type) bool {
	switch stage {
	case queue.TypeScan:
		return c.stages.Scan
	case queue.TypeEnrich:
		return c.stages.Enrich
	case queue.TypePublish:
		return c.stages.Publish
	case queue.TypeSync:
		return c.stages.Sync
	default:
		return false
	}
}

// NextEnabled returns the first enabled stage after the given one. The second
// return is false when the chain is complete past that stage.
func (c *Chain) NextEnabled(after queue.Type) (queue.Type, bool) {
	index := -1
	for i, stage := range stageOrder {
		if stage == after {
			index = i
			break
		}
	}
	if index < 0 {
		return "", false
	}
	for _, stage := range stageOrder[index+1:] {
		if c.Enabled(stage) {
			return stage, true
		}
	}
	return "", false
}
