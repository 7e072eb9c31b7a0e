// Package config holds the settings of the relay hub and of the drive client.
//
// Both processes share a single port number. When PORT is unset the
// default is 5000, and the client targets the same port on its configured
// host. Values are normally filled from command-line flags, which in turn
// fall back to environment variables (optionally loaded from a .env file).
package config
