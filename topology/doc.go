// Package topology registers a service with the topology registry, keeps it
// alive with heartbeats, reports per-call activity and unregisters on
// shutdown.
//
// The registry may be down, slow or restarted at any time. Nothing in this
// package blocks the caller's request path: Report only queues, and all
// registry I/O happens on background goroutines that log failures and
// retry with backoff instead of returning them.
//
// # Parts
//
//   - Session owns the identity (service id) and performs register,
//     heartbeat and unregister calls, one at a time.
//   - LivenessLoop calls Session.EnsureRegistered on a fixed tick.
//   - Reporter queues activity events and delivers them in order.
//   - ShutdownCoordinator stops the loop, drains activity and unregisters.
//   - Client wires all of them; Component adapts Client to bootstrap.
//
// Transports live in subpackages: grpcstream streams heartbeats and activity
// to the registry, httpproxy polls the HTTP proxy.
//
//	t, _ := transport.New(cfg, log)
//	client, _ := topology.New(cfg, t, log)
//	_ = client.Start(ctx)
//	client.Report(topology.ActivityEvent{Target: "calculator", Kind: topology.ActivityRequestSent})
//	defer client.Shutdown(context.Background())
package topology
