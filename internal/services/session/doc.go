// Package session holds the active identity for a running client.
//
// Context replaces the identity without rebuilding the relay pool: the
// pool reads the signer at challenge time, and every identity change
// cancels the context handed out for the previous identity so its
// pipelines and publishes stop.
package session
