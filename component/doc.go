// Package component defines the lifecycle shared by everything a service
// runs alongside its main loop: the gRPC or HTTP server, the broker
// registration and the topology client.
package component
