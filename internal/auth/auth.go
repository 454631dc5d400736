// Package auth provides the credential verification used by the gateway
// pipeline. Verification is an interface so the shared-secret scheme can be
// swapped for per-caller tokens without touching the pipeline.
package auth

import "crypto/subtle"

// Verifier checks the credential presented by a request envelope.
type Verifier interface {
	Verify(credential string) bool
}

// SharedSecret accepts requests whose credential equals a single configured
// secret.
type SharedSecret struct {
	secret string
}

// NewSharedSecret builds a Verifier around the given secret.
func NewSharedSecret(secret string) *SharedSecret {
	return &SharedSecret{secret: secret}
}

func (s *SharedSecret) Verify(credential string) bool {
	if credential == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(credential), []byte(s.secret)) == 1
}
