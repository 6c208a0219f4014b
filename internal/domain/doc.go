// Package domain holds the value types of the dispatch floor: shifts,
// routes, lotes, client orders, print jobs, and the event envelope they
// all report through.
//
// Ground rules:
//   - no imports from other internal/ packages
//   - no *sql.DB, http.Request, or context.Context in struct fields
//   - JSON and DB tags are fine, behavior is not
//   - enums and their validation helpers live next to their type
package domain
