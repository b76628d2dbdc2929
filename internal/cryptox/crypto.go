// Package cryptox derives the names under which user stores live on disk.
package cryptox

import (
	"crypto/sha1"
	"encoding/base32"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// storeKey keys the password hash so store names cannot be matched against
// plain password hash tables.
var storeKey = []byte("\x14Q\xd4JbDk\x1bN\x84J\xd0\x05\x8a\x1b\x8b\xa6&V\x1b\xc5\x91\x97\xc4")

var plainUsername = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// EncodeUsername maps an account name to the form Sync clients put in URLs.
// Names made only of [A-Za-z0-9._-] are kept; anything else (typically an
// e-mail address) becomes lower(base32(sha1(name))).
func EncodeUsername(name string) string {
	if ValidUsername(name) {
		return name
	}
	sum := sha1.Sum([]byte(name))
	return strings.ToLower(base32.StdEncoding.EncodeToString(sum[:]))
}

// ValidUsername reports whether name is usable as a uid in URLs and store
// file names.
func ValidUsername(name string) bool {
	return plainUsername.MatchString(name) && name != "." && name != ".."
}

// StoreName returns the file name of the store owned by (user, password):
// "<user>.<16 hex chars>". A wrong password yields a different name, which
// is how a failed login is detected.
func StoreName(user, password string) string {
	h, err := blake2b.New256(storeKey)
	if err != nil {
		// only fails for keys longer than 64 bytes
		panic(err)
	}
	h.Write([]byte(password))
	return user + "." + hex.EncodeToString(h.Sum(nil))[:16]
}

// StoreOwner extracts the user part of a store file name. User names may
// themselves contain dots, so the split is at the last one.
func StoreOwner(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}
