// Package store persists the recording schedule across restarts.
//
// The durable unit is a flat Record per job: plain data only, never live
// handles (cron entries, process handles). Saves are wholesale snapshots of
// the whole schedule; there is no incremental log. Restores are forgiving:
// a missing or corrupt snapshot yields an empty schedule, never a failed
// startup.
package store
