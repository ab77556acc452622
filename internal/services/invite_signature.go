package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const inviteSignatureLength = 16

// InviteSigner signs invite links. Its secret is unrelated to the gateway key.
type InviteSigner struct {
	secret []byte
}

func NewInviteSigner(secret string) *InviteSigner {
	return &InviteSigner{secret: []byte(secret)}
}

// Sign returns the first 16 hex characters of HMAC-SHA256("{id}:{expiresAt}").
func (s *InviteSigner) Sign(inviteID string, expiresAt int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(fmt.Sprintf("%s:%d", inviteID, expiresAt)))
	return hex.EncodeToString(mac.Sum(nil))[:inviteSignatureLength]
}

// Verify recomputes the signature and compares it in constant time.
func (s *InviteSigner) Verify(inviteID string, expiresAt int64, signature string) bool {
	expected := s.Sign(inviteID, expiresAt)
	return hmac.Equal([]byte(expected), []byte(signature))
}
