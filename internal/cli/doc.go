// Package cli implements the foodpulse command line.
//
//	foodpulse etl       merge the sources into the analytics CSV
//	foodpulse analyze   run every stage and write the workbook report
//	foodpulse serve     serve the dashboard API
//	foodpulse version   print version information
//
// Every command reads configuration from FOODPULSE_* environment variables
// and an optional YAML file; flags override both.
package cli
