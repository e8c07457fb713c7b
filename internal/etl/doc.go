// Package etl merges the raw sources into the analytics table.
//
// Orders anchor both joins: users are left-joined on user_id, then
// restaurants on restaurant_id. Every order survives exactly once, in input
// order, and unmatched keys leave the appended columns missing. Non-key
// columns present on both sides of a join are suffixed _x (left) and _y
// (right).
//
// Build runs the whole step (load, merge, persist) and is the only place the
// pipeline writes the analytics CSV. ReadAnalyticsTable loads it back for
// downstream consumers.
package etl
