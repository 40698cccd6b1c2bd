package gateway

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const (
	// challengeBytes sizes the random challenge; hex-encoded on the wire.
	challengeBytes = 32
	// maxAuthAttempts bounds signature retries on a single connection.
	maxAuthAttempts = 3
)

// AuthHandler implements the HMAC challenge-response handshake: the server
// sends a random challenge, the client answers with HMAC-SHA256 of the
// challenge under the shared secret.
type AuthHandler struct {
	sharedSecret string
}

func NewAuthHandler(sharedSecret string) *AuthHandler {
	return &AuthHandler{sharedSecret: sharedSecret}
}

// GenerateChallenge draws a fresh random challenge.
func (a *AuthHandler) GenerateChallenge() (string, error) {
	challenge := make([]byte, challengeBytes)
	if _, err := rand.Read(challenge); err != nil {
		return "", fmt.Errorf("failed to generate challenge: %w", err)
	}
	return hex.EncodeToString(challenge), nil
}

// VerifySignature checks a client's HMAC-SHA256 signature over a challenge.
// Comparison is constant-time.
func (a *AuthHandler) VerifySignature(challenge, signature string) bool {
	h := hmac.New(sha256.New, []byte(a.sharedSecret))
	h.Write([]byte(challenge))
	expected := hex.EncodeToString(h.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// HandleAuthResponse resolves one signature attempt. A challenge is single
// use: success consumes it, and repeated failures exhaust the attempt
// budget.
func (a *AuthHandler) HandleAuthResponse(client *Client, signature string) AuthResult {
	if client.Challenge == "" {
		return AuthResult{
			Event:   "auth.failure",
			Message: "No challenge found",
		}
	}

	if !a.VerifySignature(client.Challenge, signature) {
		client.AuthAttempts++

		msg := "Invalid signature"
		if client.AuthAttempts >= maxAuthAttempts {
			msg = "Too many failed attempts"
		}
		return AuthResult{
			Event:   "auth.failure",
			Message: msg,
		}
	}

	client.Authenticated = true
	client.State = StateAuthenticated
	client.AuthAttempts = 0
	client.Challenge = ""

	return AuthResult{
		Event:   "auth.success",
		Success: true,
	}
}
