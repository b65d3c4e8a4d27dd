// Package state holds the canonical ordered message list for a conversation
// and the deterministic merge reducer that reconciles concurrently produced
// updates into it. The reducer is the only path by which the canonical list
// changes; every merge yields a new version so readers never observe a
// partially merged state.
package state
