// Package commands defines the forwardclient CLI.
//
// Commands
//
//   - forwardclient   Handshake, listen locally and relay one connection
//   - seal-key        Seal a key-wrap secret under a passphrase
//   - fingerprint     Print the registry fingerprint of a certificate
//
// The root command collects its --option=value flags into a map and hands it
// to app.ParseConfig, so defaults and validation live in one place.
package commands
