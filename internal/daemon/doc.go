// Package daemon ingests task files dropped into an inbox directory.
//
// Any program that can write a file can create tasks: a JSON task file
// (see package schema) written to the inbox becomes a task inserted through
// the ordering engine, at the top of its list or at the anchor the file
// names. Ingested files are moved to inbox/processed, rejected ones to
// inbox/failed.
//
// # Usage Example
//
//	d, err := daemon.New(engine, ".tasktree/inbox", daemon.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	return d.Start(ctx) // blocks until ctx is cancelled
//
// # Debouncing
//
// Writers often create a file and write it in several steps. A file is
// ingested only after no event has been seen for it for DebounceInterval.
// Writers that can should write to a temp name and rename into the inbox.
package daemon
