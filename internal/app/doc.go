// Package app assembles the FoodPulse application.
//
// New wires every component from configuration: resolved paths, the three
// sources, the pipeline stages and manager, the job queue, the services and
// the HTTP router. Nothing runs until the caller picks a mode.
//
// Batch commands call RunPipeline and exit. The server mode calls Serve,
// which loads the last analytics table, starts the job queue and serves the
// API until its context is cancelled.
//
//	a, err := app.New(ctx, cfg, logger, app.Options{})
//	if err != nil {
//	    return err
//	}
//	defer a.Close(ctx)
//	return a.Serve(ctx)
package app
