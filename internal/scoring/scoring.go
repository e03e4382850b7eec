// Package scoring computes deterministic quality scores for candidate
// artwork. Score is a pure function: no I/O, no clock, identical inputs give
// identical output, and the result always lands in [0, 100].
package scoring

import (
	"math"
	"strings"

	"curator/internal/catalog"
)

// Term weights. All terms are additive and independently capped, so the sum
// can never exceed 100.
const (
	resolutionWeight = 40.0
	aspectWeight     = 20.0
	languageWeight   = 15.0
	voteWeight       = 15.0
	providerWeight   = 10.0
)

// voteSaturation is the vote count at which a rating earns full confidence.
// Below it the rating's contribution is scaled down so a single extreme vote
// cannot dominate.
const voteSaturation = 50

// neutralLanguage is the fallback that earns partial credit when the user's
// preferred language is unavailable.
const neutralLanguage = "en"

// Profile holds the per-asset-type ideals a candidate is measured against.
type Profile struct {
	IdealWidth  int
	IdealHeight int
}

// IdealAspect is the width/height ratio the profile considers perfect.
func (p Profile) IdealAspect() float64 {
	if p.IdealHeight == 0 {
		return 0
	}
	return float64(p.IdealWidth) / float64(p.IdealHeight)
}

// ProfileFor returns the measurement profile for an asset type.
func ProfileFor(assetType catalog.AssetType) Profile {
	switch assetType {
	case catalog.AssetBackdrop:
		return Profile{IdealWidth: 3840, IdealHeight: 2160}
	case catalog.AssetLogo:
		return Profile{IdealWidth: 800, IdealHeight: 310}
	default:
		return Profile{IdealWidth: 2000, IdealHeight: 3000}
	}
}

// Engine scores candidates against per-asset-type profiles, a user language
// preference, and configured provider priorities.
type Engine struct {
	language   string
	priorities map[string]int
}

// NewEngine builds a scoring engine. Priorities are clamped to [0, 10] at
// scoring time, so arbitrary config values stay safe.
func NewEngine(language string, priorities map[string]int) *Engine {
	return &Engine{
		language:   strings.ToLower(strings.TrimSpace(language)),
		priorities: priorities,
	}
}

// Score rates a candidate from 0 to 100. Unanalyzed candidates score zero:
// without measured dimensions nothing meaningful can be said.
func (e *Engine) Score(candidate *catalog.CandidateAsset) int {
	if candidate == nil || !candidate.Analyzed {
		return 0
	}

	profile := ProfileFor(candidate.AssetType)
	total := resolutionTerm(candidate, profile) +
		aspectTerm(candidate, profile) +
		e.languageTerm(candidate) +
		voteTerm(candidate) +
		e.providerTerm(candidate)

	score := int(math.Round(total))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// resolutionTerm rewards pixel count relative to the ideal, capped at the
// ideal so oversized assets earn no bonus beyond full credit.
func resolutionTerm(candidate *catalog.CandidateAsset, profile Profile) float64 {
	idealPixels := float64(profile.IdealWidth) * float64(profile.IdealHeight)
	if idealPixels <= 0 {
		return 0
	}
	ratio := float64(candidate.Width) * float64(candidate.Height) / idealPixels
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	return resolutionWeight * ratio
}

// aspectTerm applies a penalty proportional to relative deviation from the
// ideal ratio; at 100% deviation or more the term bottoms out at zero.
func aspectTerm(candidate *catalog.CandidateAsset, profile Profile) float64 {
	ideal := profile.IdealAspect()
	if ideal <= 0 || candidate.Height <= 0 {
		return 0
	}
	aspect := float64(candidate.Width) / float64(candidate.Height)
	deviation := math.Abs(aspect-ideal) / ideal
	if deviation > 1 {
		deviation = 1
	}
	return aspectWeight * (1 - deviation)
}

func (e *Engine) languageTerm(candidate *catalog.CandidateAsset) float64 {
	lang := strings.ToLower(strings.TrimSpace(candidate.Language))
	switch {
	case lang == "":
		// Logos and textless art carry no language; near-full neutral credit.
		return languageWeight * 0.85
	case lang == e.language && e.language != "":
		return languageWeight
	case lang == neutralLanguage:
		return languageWeight * 0.6
	default:
		return languageWeight * 0.2
	}
}

// voteTerm scales the normalized rating by a confidence weight that grows
// with vote count up to saturation.
func voteTerm(candidate *catalog.CandidateAsset) float64 {
	rating := candidate.Rating / 10
	if rating < 0 {
		rating = 0
	}
	if rating > 1 {
		rating = 1
	}
	confidence := float64(candidate.Votes) / voteSaturation
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return voteWeight * rating * confidence
}

func (e *Engine) providerTerm(candidate *catalog.CandidateAsset) float64 {
	priority := e.priorities[candidate.Provider]
	if priority < 0 {
		priority = 0
	}
	if priority > 10 {
		priority = 10
	}
	return providerWeight * float64(priority) / 10
}
