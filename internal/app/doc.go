// Package app wires the forward client and server from validated options.
//
// ParseConfig and ParseServerConfig turn option maps into immutable Config
// values; NewClient and NewServer build the dependency graphs (stores,
// handshake engine, relay engine) the commands run.
package app
