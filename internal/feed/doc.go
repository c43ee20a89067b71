// Package feed keeps client-side snapshots of server data current.
//
// A Feed combines three sources for one slice of data:
//   - an initial REST fetch, gated by a precondition such as a signed-in user
//   - a realtime channel whose payloads replace the snapshot wholesale
//   - a polling fallback that re-runs the fetch on an interval
//
// Whichever value arrives last wins. Every applied value bumps Version and
// records its Source so consumers can see the order things landed in.
package feed
