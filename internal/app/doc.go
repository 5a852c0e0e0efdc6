// Package app loads configuration and wires application dependencies for
// the CLI.
//
// Config is read from YAML and validated. NewSession builds the concrete
// stores, the relay pool and the high-level services from it. A Session
// owns the pool and the identity context; unlocking an identity binds it
// to every component at once and Close releases them.
package app
