// Package buildinfo exposes the version of the running binary.
//
// Release builds inject the values with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/devserve-go/internal/infra/buildinfo.Version=v1.2.0"
//
// Values left unset are filled from the module build information
// recorded by the Go toolchain.
package buildinfo
