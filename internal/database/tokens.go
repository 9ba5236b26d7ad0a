package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/oauth2"
)

// getEncryptionKey derives a 32-byte AES key for token storage.
// Uses TGCAL_ENCRYPTION_KEY if set, otherwise derives from the
// Anthropic API key so single-binary deploys work out of the box.
func getEncryptionKey() []byte {
	keySource := os.Getenv("TGCAL_ENCRYPTION_KEY")
	if keySource == "" {
		keySource = "tgcal-encryption-" + os.Getenv("ANTHROPIC_API_KEY")
	}
	hash := sha256.Sum256([]byte(keySource))
	return hash[:]
}

// encryptToken encrypts a token string using AES-256-GCM
func encryptToken(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(getEncryptionKey())
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decryptToken decrypts a token string encrypted with encryptToken
func decryptToken(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode token: %w", err)
	}

	block, err := aes.NewCipher(getEncryptionKey())
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(ciphertext) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt token: %w", err)
	}

	return string(plaintext), nil
}

// SaveGoogleToken stores an OAuth2 token for a conversation's account slot.
// Tokens are encrypted at rest. An existing token for the slot is replaced.
func (d *DB) SaveGoogleToken(conversationID int64, slot int, token *oauth2.Token) error {
	accessEnc, err := encryptToken(token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	refreshEnc, err := encryptToken(token.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	_, err = d.Exec(`
		INSERT INTO google_tokens (conversation_id, slot, access_token_encrypted, refresh_token_encrypted, token_type, expiry, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(conversation_id, slot) DO UPDATE SET
			access_token_encrypted = excluded.access_token_encrypted,
			refresh_token_encrypted = excluded.refresh_token_encrypted,
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			updated_at = CURRENT_TIMESTAMP
	`, conversationID, slot, accessEnc, refreshEnc, token.TokenType, token.Expiry)
	if err != nil {
		return fmt.Errorf("failed to save google token: %w", err)
	}

	return nil
}

// GetGoogleToken retrieves the OAuth2 token for a conversation's account
// slot. Returns (nil, nil) when no token is stored.
func (d *DB) GetGoogleToken(conversationID int64, slot int) (*oauth2.Token, error) {
	var accessEnc, refreshEnc, tokenType string
	var expiry time.Time

	err := d.QueryRow(`
		SELECT access_token_encrypted, refresh_token_encrypted, token_type, expiry
		FROM google_tokens
		WHERE conversation_id = ? AND slot = ?
	`, conversationID, slot).Scan(&accessEnc, &refreshEnc, &tokenType, &expiry)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query google token: %w", err)
	}

	accessToken, err := decryptToken(accessEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}

	refreshToken, err := decryptToken(refreshEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	return &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenType,
		Expiry:       expiry,
	}, nil
}

// DeleteGoogleTokens removes every stored token for a conversation.
func (d *DB) DeleteGoogleTokens(conversationID int64) error {
	_, err := d.Exec(`DELETE FROM google_tokens WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete google tokens: %w", err)
	}
	return nil
}
