// Package anonymize replaces participant identifiers with pseudonymous
// tokens under keyed, reversible encryption.
//
// Reversible is deliberate: an operator holding the secret can still
// de-anonymize an author for legal or moderation review. A one-way hash
// would lose that. The construction is deterministic (the nonce is derived
// from the plaintext, SIV-style), so the same author under the same secret
// always yields the same token - within a batch and across batches.
package anonymize

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// PlaceholderSecret is the secret shipped in the example configuration.
// It provides no real confidentiality; a Codec refuses to be built with it.
const PlaceholderSecret = "some-unique-key"

const (
	keyIterations = 4096
	keySalt       = "ansuz/anonymize/v1"
)

// Codec encrypts and decrypts author identifiers under a fixed secret.
type Codec struct {
	aead   cipher.AEAD
	macKey []byte
}

// New derives an AES-256 key from secret with PBKDF2 and builds a Codec.
// The placeholder secret and the empty secret are rejected.
func New(secret string) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("anonymize: empty secret")
	}
	if secret == PlaceholderSecret {
		return nil, apperr.ErrPlaceholderSecret
	}

	key := pbkdf2.Key([]byte(secret), []byte(keySalt), keyIterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("anonymize: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("anonymize: gcm: %w", err)
	}

	return &Codec{
		aead:   aead,
		macKey: pbkdf2.Key([]byte(secret), []byte(keySalt+"/nonce"), keyIterations, 32, sha256.New),
	}, nil
}

// Token returns the pseudonymous token for one author identifier.
func (c *Codec) Token(author string) string {
	nonce := c.nonce(author)
	sealed := c.aead.Seal(nil, nonce, []byte(author), nil)
	return base64.RawURLEncoding.EncodeToString(append(nonce, sealed...))
}

// Recover decrypts a token back to the original author identifier.
func (c *Codec) Recover(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("anonymize: decode token: %w", err)
	}
	ns := c.aead.NonceSize()
	if len(raw) <= ns {
		return "", fmt.Errorf("anonymize: token too short")
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("anonymize: open token: %w", err)
	}
	return string(plain), nil
}

// Anonymize maps every distinct author in the batch, excluding the System
// sentinel, to its token and returns a new slice with authors replaced.
// System messages pass through untouched. The input is not modified.
func (c *Codec) Anonymize(msgs []models.Message) []models.Message {
	tokens := make(map[string]string)
	for _, m := range msgs {
		if m.IsSystem() {
			continue
		}
		if _, ok := tokens[m.Author]; !ok {
			tokens[m.Author] = c.Token(m.Author)
		}
	}

	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		if out[i].IsSystem() {
			continue
		}
		out[i].Author = tokens[out[i].Author]
	}
	return out
}

// nonce derives the synthetic nonce for a plaintext. Reusing a GCM nonce
// is only safe because it is a PRF of the plaintext under an independent
// key: identical plaintexts produce identical tokens, distinct plaintexts
// never share a nonce.
func (c *Codec) nonce(plaintext string) []byte {
	mac := hmac.New(sha256.New, c.macKey)
	mac.Write([]byte(plaintext))
	return mac.Sum(nil)[:c.aead.NonceSize()]
}
