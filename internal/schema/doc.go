// Package schema defines the file format for tasks that live outside the
// store: exported lists and task files dropped into the inbox.
//
// # Task Files
//
// A task file is a flat JSON (or YAML/TOML, for exports) object:
//
//	{
//	  "id": "d0f8kq1n0vh2o5m3g1a0",
//	  "list": "d0f8kp9n0vh2o5m3g19g",
//	  "parent": "",
//	  "title": "Book flights",
//	  "notes": "aisle seat",
//	  "completed": false,
//	  "due_at": "2026-05-01T09:00:00Z",
//	  "created_at": "2026-04-10T07:36:29Z",
//	  "updated_at": "2026-04-10T07:36:29Z"
//	}
//
// Files written by an export carry the parent of each subtask and appear in
// chain order. Files dropped into the inbox carry the target list and
// optionally one of "after" or "under" naming the anchor task; "due" may hold
// a natural-language date ("next friday") resolved at ingestion time.
//
// # Design Principles
//
//   - Flat structure, ids as plain strings
//   - The pointer fields of the chain (prev/next) are never serialized:
//     order is the order of records, and it is rebuilt through the engine
//   - Convertible to/from tasks.Task and tasks.Content
package schema
