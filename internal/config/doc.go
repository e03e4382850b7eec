// Package config loads, normalizes, and validates curator's TOML
// configuration.
//
// Configuration resolution order is: explicit path, then
// ~/.config/curator/config.toml, then ./curator.toml. Missing files fall back
// to built-in defaults so the daemon can start with nothing but provider API
// keys from the environment. All path fields are expanded (~ and relative
// segments) during Load; downstream packages never expand paths themselves.
package config
