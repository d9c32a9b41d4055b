package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Settings table - stores runtime settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Sessions table - one row per capture run with final pipeline counters
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			camera_id INTEGER NOT NULL DEFAULT 0,
			model_path TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			frames_captured INTEGER NOT NULL DEFAULT 0,
			frames_admitted INTEGER NOT NULL DEFAULT 0,
			frames_dropped INTEGER NOT NULL DEFAULT 0,
			frames_completed INTEGER NOT NULL DEFAULT 0,
			detector_failures INTEGER NOT NULL DEFAULT 0,
			decode_skips INTEGER NOT NULL DEFAULT 0,
			last_fps REAL NOT NULL DEFAULT 0
		)`,

		// Session samples table - periodic throughput readings during a session
		`CREATE TABLE IF NOT EXISTS session_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			recorded_at DATETIME NOT NULL,
			fps REAL NOT NULL,
			objects INTEGER NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_session_samples_session_id ON session_samples(session_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
