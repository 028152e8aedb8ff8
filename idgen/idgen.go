// Package idgen generates the identifiers boost hands out: document ids,
// journal entry ids and short connection tags for logs.
package idgen

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 version 7 UUIDs. They sort by
// creation time, so documents list in the order they were opened.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Short returns a Generator of base-36 tags of the given length, used to
// tell websocket connections apart in logs.
func Short(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(buf)
	}
}

// Prefixed prepends prefix to every id of gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// CommandPrefix marks journal entry ids.
const CommandPrefix = "cmd_"

var (
	// Document names a hosted document.
	Document Generator = UUIDv7()
	// Command names a journal entry.
	Command Generator = Prefixed(CommandPrefix, UUIDv7())
	// Conn tags a channel connection.
	Conn Generator = Short(8)
)

// ParseDocument validates a document id and returns its canonical form.
func ParseDocument(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid document id %q: %w", s, err)
	}
	return u.String(), nil
}
