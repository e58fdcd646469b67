// ABOUTME: Package documentation for the store package
// ABOUTME: Explains tenant scoping, slot allocation and the usage ledger

// Package store provides SQLite-backed persistence for conversations,
// messages and the daily usage ledger.
//
// # Tenant scoping
//
// Every method takes a tenant.Scope and applies it as a parameterized
// predicate. There is no session-level isolation variable; a query without
// a scope cannot be expressed through the interface.
//
// # Slot allocation
//
// Messages carry a slot number that is unique per conversation, strictly
// increasing and gapless from 1. AppendMessage computes MAX(slot)+1 and
// inserts within one immediate transaction; a UNIQUE(conversation_id, slot)
// constraint backstops races and surfaces them as ErrSlotConflict, which
// callers retry with a freshly computed slot.
//
// # Usage ledger
//
// usage_daily holds one row per (tenant, inbox, day, agent) with additive
// counters. RecordUsage merges deltas inside the database via ON CONFLICT
// DO UPDATE, so any serialization of concurrent turns yields the same
// totals.
package store
