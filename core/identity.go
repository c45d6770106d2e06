package core

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const bearerPrefix = "Bearer "

// IdentityExtractor derives the identity a budget is tracked under from a
// raw credential (the Authorization header value).
type IdentityExtractor func(credential string) (string, error)

// ExtractBearer returns an IdentityExtractor for "Bearer <token>" credentials.
// The token is used verbatim as the identity.
func ExtractBearer() IdentityExtractor {
	return func(credential string) (string, error) {
		if credential == "" {
			return "", ErrMissingCredential
		}
		if !strings.HasPrefix(credential, bearerPrefix) {
			return "", ErrMalformedCredential
		}

		token := credential[len(bearerPrefix):]
		if token == "" {
			return "", fmt.Errorf("%w: empty bearer token", ErrMalformedCredential)
		}
		return token, nil
	}
}

// ExtractRaw returns an IdentityExtractor that uses the whole credential as
// the identity. Useful for API keys sent without a scheme.
func ExtractRaw() IdentityExtractor {
	return func(credential string) (string, error) {
		if credential == "" {
			return "", ErrMissingCredential
		}
		return credential, nil
	}
}

// ParseIdentityExtractor creates an IdentityExtractor from its config name.
// Supported names:
// - "bearer" -> ExtractBearer()
// - "raw" -> ExtractRaw()
func ParseIdentityExtractor(name string) (IdentityExtractor, error) {
	switch name {
	case "bearer", "":
		return ExtractBearer(), nil
	case "raw":
		return ExtractRaw(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExtractor, name)
	}
}

// IdentityLabel returns a short, non-reversible label for identity, safe to
// log and publish. Identities are usually live bearer tokens and must never
// leave the store.
func IdentityLabel(identity string) string {
	if identity == "" {
		return ""
	}
	return fmt.Sprintf("id-%016x", xxhash.Sum64String(identity))
}
