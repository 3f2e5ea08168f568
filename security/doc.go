// Package security holds the TLS settings shared by the gRPC and HTTP
// transports. Every peer in a local deployment speaks plaintext, so a zero
// TLSConfig builds to nil and callers fall back to insecure credentials.
package security
