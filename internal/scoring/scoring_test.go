package scoring_test

import (
	"testing"

	"curator/internal/catalog"
	"curator/internal/scoring"
)

func testEngine() *scoring.Engine {
	return scoring.NewEngine("de", map[string]int{"tmdb": 8, "fanart": 6})
}

func analyzedPoster() *catalog.CandidateAsset {
	return &catalog.CandidateAsset{
		AssetType: catalog.AssetPoster,
		Provider:  "tmdb",
		Language:  "de",
		Votes:     100,
		Rating:    8.0,
		Analyzed:  true,
		Width:     2000,
		Height:    3000,
	}
}

func TestScoreBounded(t *testing.T) {
	engine := testEngine()

	extremes := []*catalog.CandidateAsset{
		analyzedPoster(),
		{AssetType: catalog.AssetPoster, Analyzed: true},
		{AssetType: catalog.AssetPoster, Analyzed: true, Width: 100000, Height: 100000, Votes: 1 << 30, Rating: 1000, Language: "de", Provider: "tmdb"},
		{AssetType: catalog.AssetBackdrop, Analyzed: true, Width: -5, Height: -5, Rating: -3, Votes: -1},
		{AssetType: catalog.AssetLogo, Analyzed: true, Width: 1, Height: 100000},
	}
	for _, candidate := range extremes {
		score := engine.Score(candidate)
		if score < 0 || score > 100 {
			t.Fatalf("score %d out of bounds for %#v", score, candidate)
		}
	}
}

func TestScoreDeterministic(t *testing.T) {
	engine := testEngine()
	candidate := analyzedPoster()

	first := engine.Score(candidate)
	for i := 0; i < 10; i++ {
		if got := engine.Score(candidate); got != first {
			t.Fatalf("score changed across runs: %d != %d", got, first)
		}
	}
	if first == 0 {
		t.Fatal("ideal candidate must not score zero")
	}
}

func TestUnanalyzedScoresZero(t *testing.T) {
	candidate := analyzedPoster()
	candidate.Analyzed = false
	if got := testEngine().Score(candidate); got != 0 {
		t.Fatalf("unanalyzed candidate scored %d", got)
	}
	if got := testEngine().Score(nil); got != 0 {
		t.Fatalf("nil candidate scored %d", got)
	}
}

func TestOversizeEarnsNoBonus(t *testing.T) {
	engine := testEngine()
	ideal := analyzedPoster()
	oversized := analyzedPoster()
	oversized.Width = 4000
	oversized.Height = 6000

	if engine.Score(oversized) > engine.Score(ideal) {
		t.Fatal("oversized asset must not outscore the ideal resolution")
	}
}

func TestAspectDeviationPenalized(t *testing.T) {
	engine := testEngine()
	ideal := analyzedPoster()
	skewed := analyzedPoster()
	skewed.Width = 3000
	skewed.Height = 2000 // landscape poster

	if engine.Score(skewed) >= engine.Score(ideal) {
		t.Fatal("aspect deviation must cost score")
	}
}

func TestLanguagePreferenceOrdering(t *testing.T) {
	engine := testEngine()

	match := analyzedPoster()
	neutral := analyzedPoster()
	neutral.Language = "en"
	other := analyzedPoster()
	other.Language = "fr"
	none := analyzedPoster()
	none.Language = ""

	if engine.Score(match) <= engine.Score(neutral) {
		t.Fatal("exact language match must beat neutral fallback")
	}
	if engine.Score(neutral) <= engine.Score(other) {
		t.Fatal("neutral fallback must beat other languages")
	}
	// Logos and textless art without language metadata get near-full credit.
	if engine.Score(none) <= engine.Score(neutral) {
		t.Fatal("missing language metadata must earn near-full neutral credit")
	}
}

func TestLowVoteCountDampsRating(t *testing.T) {
	engine := testEngine()

	confident := analyzedPoster()
	confident.Votes = 200
	confident.Rating = 9.0

	loneExtreme := analyzedPoster()
	loneExtreme.Votes = 1
	loneExtreme.Rating = 10.0

	if engine.Score(loneExtreme) >= engine.Score(confident) {
		t.Fatal("a single extreme rating must not beat a well-voted one")
	}
}

func TestProviderPriorityCredit(t *testing.T) {
	engine := testEngine()

	primary := analyzedPoster()
	secondary := analyzedPoster()
	secondary.Provider = "fanart"

	if engine.Score(primary) <= engine.Score(secondary) {
		t.Fatal("higher-priority provider must earn more credit")
	}
}
