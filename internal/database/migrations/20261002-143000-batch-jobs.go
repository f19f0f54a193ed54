package migrations

func init() {
	Register(Migration{
		Timestamp:   "20261002-143000",
		Description: "Create batch_jobs queue for async batch generation",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS batch_jobs (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				item_count INTEGER NOT NULL DEFAULT 0,
				items_json TEXT NOT NULL,
				result_json TEXT NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT '',
				started_at TEXT,
				completed_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_batch_jobs_status_created ON batch_jobs(status, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_batch_jobs_user ON batch_jobs(user_id, created_at)`,
		},
	})
}
