// Package errors classifies failures between this process and its peers
// (registry, broker, proxy). An AppError says which kind of failure
// happened and whether retrying can help; transport adapters build one
// from their native errors so callers need not know the wire protocol.
package errors
