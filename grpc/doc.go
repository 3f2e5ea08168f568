// Package grpc holds the gRPC configuration, JSON codec and error mapping
// shared by the registry, broker and calculator clients and servers.
//
// Messages on the wire are plain Go structs encoded as JSON. The codec is
// registered under the "json" content-subtype and forced on every call and
// server built from this package, so no generated protobuf code is needed:
//
//	conn, err := client.NewClient(grpc.Config{Address: "127.0.0.1:50053"}, log)
//	err = conn.Invoke(ctx, "/runtime.v1.TopologyService/RegisterService", req, &resp)
//
// # Sub-packages
//
//   - grpc/client: connections with TLS, keepalive, timeout and logging
//     interceptors, a lazy typed client and a stream-open helper.
//   - grpc/server: a listener-backed server usable as a component.Component.
//   - grpc/interceptor: logging, timeout, recovery and metrics interceptors.
package grpc
