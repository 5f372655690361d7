// Package types holds the small, shared value types used across the
// exchange engines: the logger contract, engine configuration, and the
// sentinel errors described by the error taxonomy.
package types

import (
	"errors"

	"github.com/google/uuid"
)

// Logger is the logging contract both exchange engines depend on. It
// mirrors the level set a caller would reasonably want from an engine
// that never blocks and rarely has anything worth logging above Debug.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Fatalf(format string, v ...interface{})
}

var (
	// ErrInvalidPeer is raised when a destination or source peer id
	// falls outside [0, P). Programmer error.
	ErrInvalidPeer = errors.New("exchange: peer id out of range")

	// ErrMisuseState is returned by Validate when B or S is not
	// positive. The engines do not raise it elsewhere: Pop on drained
	// tiles and Unpop with no pending pop report false, and a
	// collective call without matching participation is not detected.
	ErrMisuseState = errors.New("exchange: engine used out of protocol")

	// ErrOutOfMemory is returned by Init when the transport's
	// symmetric allocation fails.
	ErrOutOfMemory = errors.New("exchange: symmetric allocation failed")

	// ErrTransportFault wraps an unrecoverable failure surfaced by the
	// transport layer (put/get/atomic/barrier).
	ErrTransportFault = errors.New("exchange: transport fault")
)

// Config is the immutable engine configuration, identical in shape on
// every peer. B is the per-destination buffer depth in items, S is the
// item size in bytes, and PeerCount/Self identify this engine's place
// in the SPMD cohort.
type Config struct {
	// PeerCount is P, the number of peers participating in the
	// exchange. Fixed for the engine's lifetime.
	PeerCount int

	// Self is this peer's id in [0, PeerCount).
	Self int

	// B is the buffer capacity in items per (src, dst) pair.
	B int

	// S is the item size in bytes.
	S int

	// Logger receives engine diagnostics. Defaults to a no-op logger
	// when nil is passed to Validate.
	Logger Logger

	// RunID identifies this engine instance, so multiple peers running
	// in one process (as they do in tests) can be told apart. The Bulk
	// engine prints it in its exchange-begin debug line; other log
	// lines do not carry it.
	RunID string
}

// Validate checks the configuration is usable and fills in a default
// no-op logger when the caller did not supply one.
func (c *Config) Validate() error {
	if c.PeerCount <= 0 {
		return ErrInvalidPeer
	}
	if c.Self < 0 || c.Self >= c.PeerCount {
		return ErrInvalidPeer
	}
	if c.B <= 0 || c.S <= 0 {
		return ErrMisuseState
	}
	if c.Logger == nil {
		c.Logger = noopLogger{}
	}
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}
	return nil
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}
func (noopLogger) Fatalf(string, ...interface{}) {}

// Item is an opaque fixed-size byte record. Interpretation is left to
// the application; the engine only ever copies S bytes of it.
type Item []byte
