// Package selection picks the artwork set an entity should actually use:
// best-scored survivors after near-duplicate elimination, capped at the
// configured maximum, with a cheap unchanged short-circuit that makes
// repeated enrichment idempotent.
package selection

import (
	"math/bits"
	"sort"
	"strconv"
)

// Candidate is the view of a catalog row the engine needs. Order in the input
// slice is insertion order and breaks score ties, so selection is
// deterministic across runs with identical inputs.
type Candidate struct {
	ID             int64
	Score          int
	PerceptualHash string
	Selected       bool
	Rejected       bool
	Analyzed       bool
}

// Result reports the outcome of one selection pass. When Unchanged is true
// the caller must skip every downstream mutation: selection writes, cache
// downloads, and cache evictions.
type Result struct {
	Selected  []Candidate
	Evicted   []Candidate
	Unchanged bool
}

// hashBits is the perceptual hash width; hashes are 16 hex characters.
const hashBits = 64

// Select computes the new selection for one (entity, asset type) pair.
// When locked is set the engine does nothing at all: the current selection is
// reported back unchanged regardless of any new higher-scoring candidates.
func Select(candidates []Candidate, maxAllowed int, similarityThreshold float64, locked bool) Result {
	previous := currentSelection(candidates)

	if locked {
		return Result{Selected: previous, Unchanged: true}
	}
	if maxAllowed <= 0 {
		maxAllowed = 1
	}

	eligible := make([]Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Analyzed && !candidate.Rejected {
			eligible = append(eligible, candidate)
		}
	}

	// Stable sort keeps insertion order within equal scores: earlier wins.
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Score > eligible[j].Score
	})

	selected := make([]Candidate, 0, maxAllowed)
	kept := newBucketIndex()
	for _, candidate := range eligible {
		if len(selected) >= maxAllowed {
			break
		}
		if kept.hasSimilar(candidate.PerceptualHash, similarityThreshold) {
			continue
		}
		kept.add(candidate.PerceptualHash)
		selected = append(selected, candidate)
	}

	if sameIDSet(previous, selected) {
		return Result{Selected: previous, Unchanged: true}
	}

	result := Result{Selected: selected}
	newIDs := make(map[int64]bool, len(selected))
	for _, candidate := range selected {
		newIDs[candidate.ID] = true
	}
	for _, candidate := range previous {
		if !newIDs[candidate.ID] {
			result.Evicted = append(result.Evicted, candidate)
		}
	}
	return result
}

func currentSelection(candidates []Candidate) []Candidate {
	var selected []Candidate
	for _, candidate := range candidates {
		if candidate.Selected {
			selected = append(selected, candidate)
		}
	}
	return selected
}

func sameIDSet(a, b []Candidate) bool {
	if len(a) != len(b) {
		return false
	}
	ids := make(map[int64]bool, len(a))
	for _, candidate := range a {
		ids[candidate.ID] = true
	}
	for _, candidate := range b {
		if !ids[candidate.ID] {
			return false
		}
	}
	return true
}

// bucketIndex groups kept hashes by the first byte of the perceptual hash,
// keeping dedup near-linear instead of full pairwise. A lookup probes the
// candidate's own bucket, the two adjacent keys (carries from low-bit
// differences), and every key one bit-flip away in the leading byte. That
// catches any near-duplicate pair whose leading bytes differ in at most one
// bit; a pair differing in two or more leading-byte bits can slip through,
// which at the default 0.9 threshold needs two of at most six differing bits
// to land in the top byte.
type bucketIndex struct {
	buckets map[int][]uint64
}

func newBucketIndex() *bucketIndex {
	return &bucketIndex{buckets: make(map[int][]uint64)}
}

func (b *bucketIndex) add(hash string) {
	value, ok := parseHash(hash)
	if !ok {
		return
	}
	key := bucketKey(value)
	b.buckets[key] = append(b.buckets[key], value)
}

func (b *bucketIndex) hasSimilar(hash string, threshold float64) bool {
	value, ok := parseHash(hash)
	if !ok {
		// Candidates without a perceptual hash cannot be near-duplicates of
		// anything; they stand on score alone.
		return false
	}
	for _, bucket := range probeKeys(bucketKey(value)) {
		for _, keptValue := range b.buckets[bucket] {
			if similarity(value, keptValue) >= threshold {
				return true
			}
		}
	}
	return false
}

func bucketKey(value uint64) int {
	return int(value >> (hashBits - 8))
}

func probeKeys(key int) []int {
	keys := make([]int, 0, 11)
	keys = append(keys, key, key-1, key+1)
	for bit := 0; bit < 8; bit++ {
		flipped := key ^ (1 << bit)
		if flipped != key-1 && flipped != key+1 {
			keys = append(keys, flipped)
		}
	}
	return keys
}

func parseHash(hash string) (uint64, bool) {
	if hash == "" {
		return 0, false
	}
	value, err := strconv.ParseUint(hash, 16, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// Similarity reports how alike two perceptual hashes are, from 0 (every bit
// differs) to 1 (identical).
func Similarity(a, b string) float64 {
	left, okA := parseHash(a)
	right, okB := parseHash(b)
	if !okA || !okB {
		return 0
	}
	return similarity(left, right)
}

func similarity(a, b uint64) float64 {
	distance := bits.OnesCount64(a ^ b)
	return 1 - float64(distance)/hashBits
}
