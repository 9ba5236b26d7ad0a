package migrations

import "database/sql"

func init() {
	Register(Migration{
		Version: 1,
		Name:    "google_tokens",
		Up:      googleTokensUp,
	})
}

// googleTokensUp creates the google_tokens table. Tokens are keyed by
// conversation and account slot so one chat can link several Google
// accounts. Token columns hold AES-GCM ciphertext, never plaintext.
func googleTokensUp(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS google_tokens (
			conversation_id INTEGER NOT NULL,
			slot INTEGER NOT NULL,
			access_token_encrypted TEXT NOT NULL,
			refresh_token_encrypted TEXT NOT NULL,
			token_type TEXT NOT NULL DEFAULT 'Bearer',
			expiry DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (conversation_id, slot)
		)
	`)
	return err
}
