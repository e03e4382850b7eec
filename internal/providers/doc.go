// Package providers fans artwork fetches out across external metadata
// catalogs with per-provider rate limiting and partial-failure merging.
package providers
