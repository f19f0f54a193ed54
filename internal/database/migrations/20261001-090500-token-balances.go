package migrations

func init() {
	Register(Migration{
		Timestamp:   "20261001-090500",
		Description: "Create token balances and transaction log",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS token_balances (
				user_id TEXT PRIMARY KEY,
				balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
				updated_at TEXT NOT NULL
			)`,
			// (reference, kind) makes debits and refunds idempotent per generation
			`CREATE TABLE IF NOT EXISTS token_transactions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				amount INTEGER NOT NULL,
				balance_after INTEGER NOT NULL,
				reference TEXT NOT NULL,
				created_at TEXT NOT NULL,
				UNIQUE(reference, kind)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_token_transactions_user ON token_transactions(user_id, created_at)`,
		},
	})
}
