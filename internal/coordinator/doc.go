// Package coordinator polls the OASIS backend for the full home tree and
// maintains an in-memory snapshot for the rest of the bridge to read.
//
// The snapshot is the single source of truth for which thermostats and
// sensors exist. It is rebuilt wholesale on every refresh; consumers get
// deep copies and never observe a partially updated tree. Refresh failures
// keep the previous snapshot so a transient backend outage does not blank
// out the bridge's view of the home.
//
// Refreshes run on a cron schedule (default every minute). An initial
// Refresh must succeed before dependent components start, so they never
// see an empty snapshot at boot.
package coordinator
