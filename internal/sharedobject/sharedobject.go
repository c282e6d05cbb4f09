// Package sharedobject implements the versioned wrapper every object
// tracked by the protocol executor is built on: a version identifier, the
// chain of versions it was derived from, and the two liveness flags the
// executor flips as a command sequencing it succeeds or fails.
package sharedobject

import (
	"crypto/rand"
	"encoding/hex"
)

// Payload is the domain object carried by an Object. Clone must return a
// deep copy: NewVersion relies on it to detach the new version from the
// one it was derived from.
type Payload interface {
	Clone() Payload
}

// GenerateVersion returns a fresh random version identifier, the Go
// equivalent of the reference implementation's get_unique_string: 16
// random bytes, hex encoded.
func GenerateVersion() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("sharedobject: failed to read random bytes: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// Object is a versioned, liveness-tracked wrapper around a Payload.
type Object struct {
	version          string
	previousVersions []string
	potentiallyLive  bool
	actuallyLive     bool
	payload          Payload
}

// New wraps payload at the given version. If version is empty, a fresh one
// is generated.
func New(payload Payload, version string) *Object {
	if version == "" {
		version = GenerateVersion()
	}
	return &Object{version: version, payload: payload}
}

// NewVersion deep-copies the payload and returns a new Object that records
// this object's version as its sole predecessor. The new object starts
// with both liveness flags cleared: whether it ever becomes live is a
// question for the executor, not for cloning.
func (o *Object) NewVersion(newVersion string) *Object {
	if newVersion == "" {
		newVersion = GenerateVersion()
	}
	return &Object{
		version:          newVersion,
		previousVersions: []string{o.version},
		payload:          o.payload.Clone(),
	}
}

// Version returns this object's version identifier.
func (o *Object) Version() string { return o.version }

// SetVersion overrides the version identifier, used by constructors that
// rebuild an Object from persisted or wire state.
func (o *Object) SetVersion(version string) { o.version = version }

// PreviousVersions returns the chain of versions this object was derived
// from (only ever one entry long in this implementation — a flat history
// rather than a DAG of merges).
func (o *Object) PreviousVersions() []string { return o.previousVersions }

// SetPreviousVersions overrides the recorded predecessor chain, used when
// rehydrating from storage.
func (o *Object) SetPreviousVersions(versions []string) { o.previousVersions = versions }

// PotentiallyLive reports whether a pending (not yet sequenced-successful)
// command could still make this version live.
func (o *Object) PotentiallyLive() bool { return o.potentiallyLive }

// SetPotentiallyLive is called by the executor when it sequences a command
// against this version.
func (o *Object) SetPotentiallyLive(flag bool) { o.potentiallyLive = flag }

// ActuallyLive reports whether a command has successfully committed this
// version.
func (o *Object) ActuallyLive() bool { return o.actuallyLive }

// SetActuallyLive is called by the executor on command success.
func (o *Object) SetActuallyLive(flag bool) { o.actuallyLive = flag }

// Payload returns the wrapped domain object.
func (o *Object) Payload() Payload { return o.payload }
