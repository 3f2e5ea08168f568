// Package bootstrap orchestrates the lifecycle of a service process.
//
// It takes a typed configuration, registers components, runs startup and
// shutdown hooks and stops everything in reverse order on SIGINT/SIGTERM.
//
// # Quick Start
//
//	app, err := bootstrap.NewApp(&cfg)
//	if err != nil {
//	    return err
//	}
//	app.RegisterComponent(grpcserver.NewComponent(srv))
//	app.RegisterComponent(topology.NewComponent(client))
//	return app.Run(ctx)
package bootstrap
