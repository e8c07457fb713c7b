// Package http exposes the analytics over a chi router.
//
// Handlers are thin: they parse and validate query parameters, call a
// service and render JSON. Every failure goes through the shared
// errors.ErrorHandler and is written as RFC 7807 problem details.
//
// Routes
//
//	GET  /api/health
//	GET  /api/dataset
//	GET  /api/filters
//	GET  /api/summary
//	GET  /api/forecast?periods=
//	GET  /api/segments?k=
//	GET  /api/explain
//	POST /api/pipeline/run
//	GET  /api/pipeline/jobs
//	GET  /api/pipeline/jobs/{id}
//	GET  /api/pipeline/stages
//	GET  /metrics
//
// The analytics routes accept repeatable city and membership filters.
package http
