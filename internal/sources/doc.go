// Package sources loads the three raw inputs into dataset tables.
//
// Orders come from a CSV file, users from a JSON array of (possibly nested)
// objects, and restaurants from a SQL script executed against a throwaway
// in-memory SQLite database. Every loader is also exposed through the Source
// interface, so the merger can be fed from a pre-materialized table (for
// example a Postgres table read through pgx) without changing its contract.
//
// Loaders only parse. A missing file is a SourceNotFound error, malformed
// content is a Parse error and a script without the expected table is a
// Schema error; nothing is coerced silently.
package sources
