package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"music_police/internal/model"
)

// TokenCipher seals bot tokens with AES-256-GCM before they leave the process
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher creates a TokenCipher from a 32-byte key
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &TokenCipher{aead: aesGCM}, nil
}

// NewTokenCipherFromBase64 decodes a base64 key and creates a TokenCipher
func NewTokenCipherFromBase64(encoded string) (*TokenCipher, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	return NewTokenCipher(key)
}

// Encrypt returns base64(nonce || ciphertext)
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt
func (c *TokenCipher) Decrypt(encryptedText string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedText)
	if err != nil {
		return "", err
	}
	if len(ciphertext) < c.aead.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce := ciphertext[:c.aead.NonceSize()]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext[c.aead.NonceSize():], nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// sealTeam encodes a credential for a remote store with the bot token encrypted
func sealTeam(c *TokenCipher, cred model.TeamCredential) ([]byte, error) {
	encrypted, err := c.Encrypt(cred.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt bot token: %w", err)
	}
	cred.BotToken = encrypted
	data, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal team credential: %w", err)
	}
	return data, nil
}

func openTeam(c *TokenCipher, data []byte) (model.TeamCredential, error) {
	var cred model.TeamCredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return model.TeamCredential{}, fmt.Errorf("failed to decode team credential: %w", err)
	}
	token, err := c.Decrypt(cred.BotToken)
	if err != nil {
		return model.TeamCredential{}, fmt.Errorf("failed to decrypt bot token: %w", err)
	}
	cred.BotToken = token
	return cred, nil
}

func teamKey(teamID string) string {
	return fmt.Sprintf("teams/%s.json", teamID)
}
