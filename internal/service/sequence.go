package service

import (
	"fmt"
)

// SequenceValidator tracks per-partition source sequences.
// Not thread-safe — only accessed from the single-threaded service loop.
//
// Vault commands arrive from independent callers, so gaps are tolerated;
// only regressions of a NEW (non-duplicate) sequence are rejected.
type SequenceValidator struct {
	highWater map[string]int64 // partition -> highest accepted sequence
	gaps      map[string]int64
}

func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{
		highWater: make(map[string]int64),
		gaps:      make(map[string]int64),
	}
}

// ValidateSequence checks source sequence ordering for a partition
func (sv *SequenceValidator) ValidateSequence(
	partition string,
	sourceSequence int64,
	isDuplicate bool,
) error {
	high, seen := sv.highWater[partition]

	if seen && sourceSequence <= high {
		if isDuplicate {
			// Already processed - expected
			return nil
		}
		return fmt.Errorf("stale sequence: partition=%s, high=%d, got=%d",
			partition, high, sourceSequence)
	}

	if seen && sourceSequence > high+1 {
		// Gap - record but accept
		sv.gaps[partition]++
	}

	sv.highWater[partition] = sourceSequence
	return nil
}

// RestorePartition initializes the high-water mark during recovery
func (sv *SequenceValidator) RestorePartition(partition string, seq int64) {
	sv.highWater[partition] = seq
}

// GetAllPartitions snapshots the high-water marks for persistence
func (sv *SequenceValidator) GetAllPartitions() map[string]int64 {
	out := make(map[string]int64, len(sv.highWater))
	for k, v := range sv.highWater {
		out[k] = v
	}
	return out
}

// Gaps returns the gap count for a partition
func (sv *SequenceValidator) Gaps(partition string) int64 {
	return sv.gaps[partition]
}
