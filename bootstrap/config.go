package bootstrap

import "github.com/Michael--/modular-runtime/config"

// Config is what NewApp needs from a command's configuration. Embedding
// config.ServiceConfig by value provides all three methods; commands
// override ApplyDefaults and Validate to cover their own sections and call
// through to the embedded ones.
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
