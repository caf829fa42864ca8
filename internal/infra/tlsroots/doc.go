// Package tlsroots loads the TLS material served by the HTTPS listener.
//
//   - keypair.go: key pairs from PEM strings or files, self-signed
//     development certificates
//   - clientca.go: optional client certificate verification
//   - watcher.go: certificate hot reload via fsnotify
package tlsroots
