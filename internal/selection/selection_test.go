package selection_test

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"curator/internal/selection"
)

func hashFrom(base uint64) string {
	return fmt.Sprintf("%016x", base)
}

func TestSelectDropsNearDuplicateKeepingBestScore(t *testing.T) {
	// Two near-identical posters (one flipped bit) and one distinct low
	// scorer. The duplicate of the winner must be skipped in favor of the
	// distinct candidate.
	base := uint64(0x4a4a4a4a4a4a4a4a)
	candidates := []selection.Candidate{
		{ID: 1, Score: 90, Analyzed: true, PerceptualHash: hashFrom(base)},
		{ID: 2, Score: 88, Analyzed: true, PerceptualHash: hashFrom(base ^ 1)},
		{ID: 3, Score: 40, Analyzed: true, PerceptualHash: hashFrom(base ^ 0xffffffff00000000)},
	}

	result := selection.Select(candidates, 2, 0.90, false)
	if result.Unchanged {
		t.Fatal("fresh selection must not report unchanged")
	}
	if len(result.Selected) != 2 {
		t.Fatalf("expected 2 selected, got %d", len(result.Selected))
	}
	if result.Selected[0].ID != 1 || result.Selected[1].ID != 3 {
		t.Fatalf("expected [1 3], got [%d %d]", result.Selected[0].ID, result.Selected[1].ID)
	}
}

func TestSelectIdempotent(t *testing.T) {
	candidates := []selection.Candidate{
		{ID: 1, Score: 80, Analyzed: true, PerceptualHash: hashFrom(0x1111111111111111)},
		{ID: 2, Score: 70, Analyzed: true, PerceptualHash: hashFrom(0xeeeeeeeeeeeeeeee)},
		{ID: 3, Score: 60, Analyzed: true, PerceptualHash: hashFrom(0x5a5a5a5a5a5a5a5a)},
	}

	first := selection.Select(candidates, 2, 0.90, false)
	if first.Unchanged {
		t.Fatal("first pass must report a change")
	}

	// Apply the first pass, then run again on identical inputs.
	applied := make([]selection.Candidate, len(candidates))
	copy(applied, candidates)
	selectedIDs := make(map[int64]bool)
	for _, candidate := range first.Selected {
		selectedIDs[candidate.ID] = true
	}
	for i := range applied {
		applied[i].Selected = selectedIDs[applied[i].ID]
	}

	second := selection.Select(applied, 2, 0.90, false)
	if !second.Unchanged {
		t.Fatal("identical inputs must report unchanged")
	}
	if len(second.Evicted) != 0 {
		t.Fatal("unchanged pass must not evict")
	}
}

func TestSelectLockRespected(t *testing.T) {
	candidates := []selection.Candidate{
		{ID: 1, Score: 10, Analyzed: true, Selected: true, PerceptualHash: hashFrom(0x1111111111111111)},
		{ID: 2, Score: 99, Analyzed: true, PerceptualHash: hashFrom(0xeeeeeeeeeeeeeeee)},
	}

	result := selection.Select(candidates, 1, 0.90, true)
	if !result.Unchanged {
		t.Fatal("locked selection must report unchanged")
	}
	if len(result.Selected) != 1 || result.Selected[0].ID != 1 {
		t.Fatalf("locked selection must keep current picks, got %v", result.Selected)
	}
	if len(result.Evicted) != 0 {
		t.Fatal("locked selection must not evict")
	}
}

func TestSelectTieBreakByInsertionOrder(t *testing.T) {
	candidates := []selection.Candidate{
		{ID: 7, Score: 50, Analyzed: true, PerceptualHash: hashFrom(0x1111111111111111)},
		{ID: 3, Score: 50, Analyzed: true, PerceptualHash: hashFrom(0xeeeeeeeeeeeeeeee)},
	}

	result := selection.Select(candidates, 1, 0.90, false)
	if len(result.Selected) != 1 || result.Selected[0].ID != 7 {
		t.Fatalf("earlier candidate must win score ties, got %v", result.Selected)
	}
}

func TestSelectSkipsUnanalyzedAndRejected(t *testing.T) {
	candidates := []selection.Candidate{
		{ID: 1, Score: 90, Analyzed: false, PerceptualHash: hashFrom(0x1111111111111111)},
		{ID: 2, Score: 80, Analyzed: true, Rejected: true, PerceptualHash: hashFrom(0x2222222222222222)},
		{ID: 3, Score: 10, Analyzed: true, PerceptualHash: hashFrom(0x3333333333333333)},
	}

	result := selection.Select(candidates, 3, 0.90, false)
	if len(result.Selected) != 1 || result.Selected[0].ID != 3 {
		t.Fatalf("only analyzed, non-rejected candidates are eligible, got %v", result.Selected)
	}
}

func TestSelectReportsEvictions(t *testing.T) {
	candidates := []selection.Candidate{
		{ID: 1, Score: 40, Analyzed: true, Selected: true, PerceptualHash: hashFrom(0x1111111111111111)},
		{ID: 2, Score: 95, Analyzed: true, PerceptualHash: hashFrom(0xeeeeeeeeeeeeeeee)},
	}

	result := selection.Select(candidates, 1, 0.90, false)
	if result.Unchanged {
		t.Fatal("expected a selection change")
	}
	if len(result.Selected) != 1 || result.Selected[0].ID != 2 {
		t.Fatalf("expected new winner, got %v", result.Selected)
	}
	if len(result.Evicted) != 1 || result.Evicted[0].ID != 1 {
		t.Fatalf("expected old pick evicted, got %v", result.Evicted)
	}
}

// bruteForceSelect is the reference implementation: full pairwise dedup over
// the score-sorted list.
func bruteForceSelect(candidates []selection.Candidate, maxAllowed int, threshold float64) []int64 {
	sorted := make([]selection.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Analyzed && !candidate.Rejected {
			sorted = append(sorted, candidate)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var kept []selection.Candidate
	for _, candidate := range sorted {
		if len(kept) >= maxAllowed {
			break
		}
		duplicate := false
		for _, existing := range kept {
			if selection.Similarity(candidate.PerceptualHash, existing.PerceptualHash) >= threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, candidate)
		}
	}

	ids := make([]int64, len(kept))
	for i, candidate := range kept {
		ids[i] = candidate.ID
	}
	return ids
}

func TestSelectDropsDuplicateDifferingInLeadingByte(t *testing.T) {
	// A single flipped bit high in the hash moves the candidate many bucket
	// keys away from the original while staying 98% similar. The index must
	// still find the kept original.
	base := uint64(0x4a4a4a4a4a4a4a4a)
	candidates := []selection.Candidate{
		{ID: 1, Score: 90, Analyzed: true, PerceptualHash: hashFrom(base)},
		{ID: 2, Score: 88, Analyzed: true, PerceptualHash: hashFrom(base ^ (1 << 62))},
		{ID: 3, Score: 40, Analyzed: true, PerceptualHash: hashFrom(base ^ 0xffffffff00000000)},
	}

	result := selection.Select(candidates, 2, 0.90, false)
	if len(result.Selected) != 2 {
		t.Fatalf("expected 2 selected, got %d", len(result.Selected))
	}
	if result.Selected[0].ID != 1 || result.Selected[1].ID != 3 {
		t.Fatalf("expected [1 3], got [%d %d]", result.Selected[0].ID, result.Selected[1].ID)
	}
}

func TestBucketedDedupMatchesBruteForce(t *testing.T) {
	// Clusters of hashes that differ in low bits plus at most one bit of the
	// leading byte per pair. Cross-cluster hashes are far apart.
	rng := rand.New(rand.NewSource(7))
	var candidates []selection.Candidate
	id := int64(1)
	for cluster := 0; cluster < 12; cluster++ {
		base := (uint64(cluster)*21+3)<<56 | rng.Uint64()&0x00ffffffffffff00
		leadBit := uint(56 + rng.Intn(8))
		members := 1 + rng.Intn(4)
		for m := 0; m < members; m++ {
			hash := base ^ uint64(rng.Intn(4)) // flip at most 2 low bits
			if rng.Intn(3) == 0 {
				hash ^= 1 << leadBit // sometimes the cluster's leading-byte bit too
			}
			candidates = append(candidates, selection.Candidate{
				ID:             id,
				Score:          rng.Intn(101),
				Analyzed:       true,
				PerceptualHash: hashFrom(hash),
			})
			id++
		}
	}

	for _, maxAllowed := range []int{1, 3, 10} {
		want := bruteForceSelect(candidates, maxAllowed, 0.90)
		got := selection.Select(candidates, maxAllowed, 0.90, false)

		gotIDs := make([]int64, len(got.Selected))
		for i, candidate := range got.Selected {
			gotIDs[i] = candidate.ID
		}
		if len(gotIDs) != len(want) {
			t.Fatalf("maxAllowed=%d: bucketed picked %v, brute force %v", maxAllowed, gotIDs, want)
		}
		for i := range want {
			if gotIDs[i] != want[i] {
				t.Fatalf("maxAllowed=%d: bucketed picked %v, brute force %v", maxAllowed, gotIDs, want)
			}
		}
	}
}
