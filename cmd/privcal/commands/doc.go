// Package commands defines the privcal CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init      Create or import the local identity
//   - pubkey    Print the identity public key and fingerprint
//   - relays    Show a pubkey's relay list, or publish your own with "relays set"
//   - publish   Publish a calendar event, privately by default
//   - rsvp      Answer a calendar event privately
//   - listen    Stream private calendar events addressed to you
//
// # Implementation
//
// The root command loads the YAML config, applies flag overrides and builds
// an app.Session (stores, relay pool, services) before any subcommand runs.
// The session is closed after the subcommand returns.
package commands
