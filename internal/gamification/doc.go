// Package gamification holds the pure derivation rules of the behaviour
// ledger: point aggregation, streaks, leaderboard ranking, badge eligibility
// and the redemption balance guard. Nothing here performs I/O; every result is
// a function of the events and configuration passed in, so callers may
// recompute from scratch at any time.
package gamification
