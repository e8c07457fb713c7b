// Package services holds the application layer between the HTTP handlers
// and the analytics packages.
//
// AnalyticsService serves the transforms over the current analytics table,
// narrowed by the dashboard filters. The table is replaced atomically when
// it is reloaded from disk or produced by a pipeline run, so requests never
// observe a partially built table.
//
// PipelineService queues pipeline runs on a pipeline.JobQueue and publishes
// the merged table of every finished run to the AnalyticsService.
//
// HealthService reports dataset and pipeline readiness.
package services
