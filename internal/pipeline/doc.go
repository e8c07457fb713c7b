// Package pipeline runs the FoodPulse stages in dependency order.
//
// A run loads the three sources, merges them into the analytics table,
// persists it, computes the analytics transforms and optionally writes the
// xlsx report. Stages exchange results through a shared State; the Manager
// executes them sequentially with per-stage timeouts, skips the dependents
// of a failed stage, and traces every run and stage with OpenTelemetry.
//
// # Stages
//
//	load      read orders, users and restaurants
//	merge     left-join users and restaurants onto orders
//	persist   write output/final_food_delivery_dataset.csv
//	summarize KPIs and breakdowns
//	forecast  daily revenue forecast
//	segment   customer segmentation
//	explain   order value attribution
//	report    xlsx workbook of every artifact
package pipeline
