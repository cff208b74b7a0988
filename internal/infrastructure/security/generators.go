// Package security provides identity verification and id generation for the
// collaboration engine. Tokens are verified here, never minted; issuance
// belongs to the external identity service.
package security

import (
	"github.com/oklog/ulid/v2"
)

// GenerateULID generates a new ULID string, used for document record ids.
func GenerateULID() string {
	return ulid.Make().String()
}
