// Package logger provides structured logging for modular-runtime services
// on top of zerolog.
//
// Loggers are passed explicitly to the components that need them. A
// process-wide default exists for package-level helpers used by the
// lifecycle plumbing (component registry, bootstrap).
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"   # or "console"
//
// # Usage
//
//	log := logger.New(&cfg.Logging, "calculator-client")
//	log.WithComponent("topology").Info("registered", logger.Fields("service_id", id))
package logger
