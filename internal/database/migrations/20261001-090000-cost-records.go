package migrations

func init() {
	Register(Migration{
		Timestamp:   "20261001-090000",
		Description: "Create cost_records ledger",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS cost_records (
				id TEXT PRIMARY KEY,
				correlation_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				operation TEXT NOT NULL,
				provider TEXT NOT NULL DEFAULT '',
				model TEXT NOT NULL DEFAULT '',
				input_tokens INTEGER NOT NULL DEFAULT 0,
				output_tokens INTEGER NOT NULL DEFAULT 0,
				image_count INTEGER NOT NULL DEFAULT 0,
				estimated_cost_usd REAL NOT NULL DEFAULT 0,
				estimated_cost_clp REAL NOT NULL DEFAULT 0,
				actual_cost_usd REAL,
				provider_cost_usd REAL,
				premium INTEGER NOT NULL DEFAULT 0,
				success INTEGER NOT NULL DEFAULT 0,
				error_kind TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_cost_records_user_created ON cost_records(user_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_cost_records_created ON cost_records(created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_cost_records_correlation ON cost_records(correlation_id)`,
		},
	})
}
