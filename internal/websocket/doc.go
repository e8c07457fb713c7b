// Package websocket streams pipeline progress to browser clients.
//
// The Hub receives run snapshots from the pipeline manager and broadcasts
// them as JSON messages of type "pipeline:snapshot". A client that connects
// mid-run first gets a "connection" message and then the latest snapshot.
package websocket
