// Command devserve-server serves a directory over HTTP, HTTPS and HTTP/2.
//
// Configuration is read from an optional YAML file, DEVSERVE_ environment
// variables and command-line flags, in increasing priority. The log
// level follows changes to the configuration file while the server
// runs.
package main
