// Package store provides the in-memory keyed state shared across sessions.
//
// [TTL] is a generic map whose entries expire a fixed time after they were
// written. Keys are spread over shards, each guarded by its own mutex, so
// traffic on one session never waits on an unrelated one.
//
//	prefs := store.NewTTL[domain.Preferences](time.Hour)
//	prefs.Put("line:u1", p)
//
//	if p, ok := prefs.Get("line:u1"); ok {
//	    // fresh entry
//	}
//
// Expired entries are invisible to Get immediately. They are removed from
// memory by Get, or in bulk by Reap, which callers run on a schedule.
package store
