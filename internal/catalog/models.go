package catalog

import (
	"strings"
	"time"
)

// EntityType identifies the kind of media an entity represents.
type EntityType string

const (
	EntityMovie  EntityType = "movie"
	EntitySeries EntityType = "series"
)

// AssetType identifies a class of artwork attached to an entity.
type AssetType string

const (
	AssetPoster   AssetType = "poster"
	AssetBackdrop AssetType = "backdrop"
	AssetLogo     AssetType = "logo"
)

// AssetTypes lists every supported asset class in a stable order.
func AssetTypes() []AssetType {
	return []AssetType{AssetPoster, AssetBackdrop, AssetLogo}
}

// ParseAssetType normalizes user or provider input into a known asset type.
func ParseAssetType(value string) (AssetType, bool) {
	switch AssetType(strings.ToLower(strings.TrimSpace(value))) {
	case AssetPoster:
		return AssetPoster, true
	case AssetBackdrop:
		return AssetBackdrop, true
	case AssetLogo:
		return AssetLogo, true
	default:
		return "", false
	}
}

// ParseEntityType normalizes input into a known entity type.
func ParseEntityType(value string) (EntityType, bool) {
	switch EntityType(strings.ToLower(strings.TrimSpace(value))) {
	case EntityMovie:
		return EntityMovie, true
	case EntitySeries:
		return EntitySeries, true
	default:
		return "", false
	}
}

// Selection provenance values for CandidateAsset.SelectedBy.
const (
	SelectedByAuto = "auto"
	SelectedByUser = "user"
)

// Entity is a media item tracked by the library. Lock flags freeze automatic
// selection for the matching asset type; only a direct user action may change
// selection state while a flag is set.
type Entity struct {
	ID             string
	Type           EntityType
	Title          string
	Year           int
	LibraryPath    string
	PosterLocked   bool
	BackdropLocked bool
	LogoLocked     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Locked reports whether automatic selection is frozen for the asset type.
func (e *Entity) Locked(assetType AssetType) bool {
	switch assetType {
	case AssetPoster:
		return e.PosterLocked
	case AssetBackdrop:
		return e.BackdropLocked
	case AssetLogo:
		return e.LogoLocked
	default:
		return false
	}
}

// CandidateAsset is one piece of artwork a provider offered for an entity.
// Rows are unique per (entity, asset type, source URL) and live for the
// entity's lifetime; analysis, scoring, and selection mutate them in place
// rather than replacing them.
type CandidateAsset struct {
	ID             int64
	EntityID       string
	AssetType      AssetType
	Provider       string
	SourceURL      string
	Language       string
	Votes          int
	Rating         float64
	Analyzed       bool
	Width          int
	Height         int
	// Duration is seconds of playback for timed assets. Every current asset
	// type is a still image, so the analyzer leaves it zero; it is persisted
	// so adding a timed type (theme audio, motion backdrops) is a schema
	// no-op.
	Duration       int
	ContentHash    string
	PerceptualHash string
	Score          float64
	IsSelected     bool
	IsRejected     bool
	SelectedBy     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CacheEntry records artwork bytes materialized in the content-addressed
// cache. An entry exists iff the bytes are on disk; the storage locator is
// relative to the cache root.
type CacheEntry struct {
	ContentHash    string
	PerceptualHash string
	AssetType      AssetType
	StorageLocator string
	Width          int
	Height         int
	CreatedAt      time.Time
}
