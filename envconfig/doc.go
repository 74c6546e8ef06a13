// Package envconfig loads a goToken.Config from GOTOKEN_* environment
// variables. Unset variables keep the value from goToken.DefaultConfig.
package envconfig
