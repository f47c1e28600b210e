// Package datasources owns datasource records and the synchronization state
// machine.
//
// # State machine
//
//	unsynced -> pending -> running -> {synced, error}
//
// TriggerSync is the only transition this service performs: it sets pending
// unconditionally after the usage guard allows, then dispatches exactly one
// sync task. Running, synced, and error are written by the external
// ingestion pipeline and may land concurrently with anything here.
//
// Triggering an already-pending or running datasource is a force resync.
// The per-datasource advisory lease keeps concurrent triggers from racing,
// and the queue consumer deduplicates messages.
package datasources
