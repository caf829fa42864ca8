// Package confloader loads configuration with koanf and watches the
// configuration file for changes.
//
// Sources, lowest to highest priority:
//
//  1. Defaults held by the target struct
//  2. YAML configuration file
//  3. DEVSERVE_ environment variables
//  4. Overrides such as command-line flags (LoadMap)
//
// Environment variable names nest with a double underscore, so single
// underscores stay part of the key: DEVSERVE_SERVER__PORT_HINT sets
// server.port_hint.
package confloader
