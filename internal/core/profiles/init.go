// Package profiles registers the record profiles the sync engine can
// target. Import this package for its side effects to make all profiles
// available:
//
//	import _ "github.com/elabsync/elabsync/internal/core/profiles"
//
// Each profile file uses init() to register its profile, so adding a
// new record family is one new file in this package.
package profiles
