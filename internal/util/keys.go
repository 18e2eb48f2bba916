package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// TokenKey returns the storage key of a dependency token.
// The type is length-prefixed so a ':' inside it cannot make two
// different (type, id) pairs collide: ("a:b","c") vs ("a","b:c").
func TokenKey(typ, id string) string {
	return "dep:" + strconv.Itoa(len(typ)) + ":" + typ + ":" + id
}

// Redact returns the first 16 hex chars of sha256(k). Used wherever a
// storage key ends up in logs.
func Redact(k string) string {
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}
