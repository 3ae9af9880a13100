// Package lotctx holds the process-wide state every guarded LotMan
// operation reads: the current caller principal and an optional lot_home
// override. It exists because the eventual C-ABI shim has no way to
// thread a request-scoped value through every call, so LotMan keeps a
// small synchronized registry instead (spec.md §4.7/§9).
//
// Writers should treat this as set-once at startup: reads are unordered
// relative to writes, so a caller that cares about visibility must set
// the keys before the first call that depends on them.
package lotctx

import "sync"

// Key names recognized by Set. Any other key is rejected.
const (
	KeyCaller  = "caller"
	KeyLotHome = "lot_home"
)

var (
	mu      sync.RWMutex
	caller  string
	lotHome string
)

// Set stores a value for one of the recognized keys. It returns an error
// for any other key.
func Set(key, value string) error {
	switch key {
	case KeyCaller:
		mu.Lock()
		caller = value
		mu.Unlock()
	case KeyLotHome:
		mu.Lock()
		lotHome = value
		mu.Unlock()
	default:
		return &UnrecognizedKeyError{Key: key}
	}
	return nil
}

// Caller returns the current caller principal, or "" if never set.
func Caller() string {
	mu.RLock()
	defer mu.RUnlock()
	return caller
}

// LotHome returns the configured lot_home override, or "" if unset, in
// which case the Store falls back to LOT_HOME and the user's home
// directory.
func LotHome() string {
	mu.RLock()
	defer mu.RUnlock()
	return lotHome
}

// Reset clears all process-wide state. Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	caller = ""
	lotHome = ""
}

// UnrecognizedKeyError is returned by Set for an unrecognized key.
type UnrecognizedKeyError struct {
	Key string
}

func (e *UnrecognizedKeyError) Error() string {
	return "unrecognized context key: " + e.Key
}
