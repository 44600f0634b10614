package store

import (
	"fmt"
)

// Migrate runs versioned, additive migrations. Destructive schema changes
// require an explicit new version; existing versions are never edited.
func (db *DB) Migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			version INTEGER UNIQUE NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations")
	row.Scan(&currentVersion)

	migrations := []struct {
		version int
		sql     string
	}{
		{
			version: 1,
			sql: `
				-- Sessions: one respondent attempt on one platform for one survey
				CREATE TABLE IF NOT EXISTS sessions (
					id TEXT PRIMARY KEY,
					survey_id TEXT NOT NULL,
					platform_id TEXT NOT NULL,
					respondent_id TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'active',
					user_agent TEXT NOT NULL DEFAULT '',
					ip_address TEXT NOT NULL DEFAULT '',
					fingerprint TEXT NOT NULL DEFAULT '',
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_sessions_survey ON sessions(survey_id);
				CREATE INDEX IF NOT EXISTS idx_sessions_survey_platform ON sessions(survey_id, platform_id);
				CREATE INDEX IF NOT EXISTS idx_sessions_hierarchy ON sessions(survey_id, platform_id, respondent_id);
				CREATE INDEX IF NOT EXISTS idx_sessions_hierarchy_id ON sessions(survey_id, platform_id, respondent_id, id);
				CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(survey_id, created_at);
				CREATE INDEX IF NOT EXISTS idx_sessions_ip ON sessions(ip_address, created_at);
				CREATE INDEX IF NOT EXISTS idx_sessions_fingerprint ON sessions(fingerprint);
			`,
		},
		{
			version: 2,
			sql: `
				-- Behavioral events, append-only, capped per session
				CREATE TABLE IF NOT EXISTS events (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL,
					event_type TEXT NOT NULL,
					timestamp INTEGER NOT NULL,
					element_id TEXT,
					element_type TEXT,
					payload TEXT DEFAULT '{}',
					FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
				);

				CREATE INDEX IF NOT EXISTS idx_events_session_ts ON events(session_id, timestamp);
				CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
			`,
		},
		{
			version: 3,
			sql: `
				-- Survey question and response text
				CREATE TABLE IF NOT EXISTS survey_questions (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL,
					question_text TEXT NOT NULL,
					question_type TEXT NOT NULL DEFAULT 'other',
					element_id TEXT,
					created_at INTEGER NOT NULL,
					FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
				);

				CREATE TABLE IF NOT EXISTS survey_responses (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL,
					question_id TEXT NOT NULL,
					response_text TEXT NOT NULL DEFAULT '',
					response_time_ms INTEGER NOT NULL DEFAULT 0,
					quality_score REAL,
					is_flagged INTEGER NOT NULL DEFAULT 0,
					flag_reasons TEXT NOT NULL DEFAULT '[]',
					FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
				);

				CREATE INDEX IF NOT EXISTS idx_questions_session ON survey_questions(session_id);
				CREATE INDEX IF NOT EXISTS idx_responses_session ON survey_responses(session_id);
				CREATE INDEX IF NOT EXISTS idx_responses_question ON survey_responses(question_id);
			`,
		},
		{
			version: 4,
			sql: `
				-- Grid rows and per-response timing classifications
				CREATE TABLE IF NOT EXISTS grid_responses (
					session_id TEXT NOT NULL,
					question_id TEXT NOT NULL,
					row_id TEXT NOT NULL,
					value TEXT NOT NULL DEFAULT '',
					response_time_ms INTEGER NOT NULL DEFAULT 0,
					PRIMARY KEY (session_id, question_id, row_id),
					FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
				);

				CREATE TABLE IF NOT EXISTS timing_analyses (
					session_id TEXT NOT NULL,
					question_id TEXT NOT NULL,
					response_time_ms INTEGER NOT NULL DEFAULT 0,
					is_speeder INTEGER NOT NULL DEFAULT 0,
					is_flatliner INTEGER NOT NULL DEFAULT 0,
					anomaly_z REAL,
					PRIMARY KEY (session_id, question_id),
					FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
				);

				CREATE INDEX IF NOT EXISTS idx_grid_session ON grid_responses(session_id);
				CREATE INDEX IF NOT EXISTS idx_timing_session ON timing_analyses(session_id);
			`,
		},
		{
			version: 5,
			sql: `
				-- Detection results; hierarchy denormalized for index-only rollups
				CREATE TABLE IF NOT EXISTS detection_results (
					session_id TEXT NOT NULL,
					survey_id TEXT NOT NULL,
					platform_id TEXT NOT NULL,
					respondent_id TEXT NOT NULL,
					created_at INTEGER NOT NULL,
					is_bot INTEGER NOT NULL DEFAULT 0,
					confidence_score REAL NOT NULL DEFAULT 0,
					risk_level TEXT NOT NULL DEFAULT 'low',
					method_scores TEXT NOT NULL DEFAULT '{}',
					processing_time_ms INTEGER NOT NULL DEFAULT 0,
					event_count INTEGER NOT NULL DEFAULT 0,
					composite_score REAL,
					text_quality_score REAL,
					fraud_score REAL,
					summary TEXT NOT NULL DEFAULT '',
					PRIMARY KEY (session_id, created_at),
					FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
				);

				CREATE INDEX IF NOT EXISTS idx_results_survey ON detection_results(survey_id, created_at);
				CREATE INDEX IF NOT EXISTS idx_results_survey_platform ON detection_results(survey_id, platform_id, created_at);
				CREATE INDEX IF NOT EXISTS idx_results_hierarchy ON detection_results(survey_id, platform_id, respondent_id, created_at);
			`,
		},
		{
			version: 6,
			sql: `
				-- Fraud indicators; hierarchy denormalized for index-only rollups
				CREATE TABLE IF NOT EXISTS fraud_indicators (
					session_id TEXT NOT NULL,
					survey_id TEXT NOT NULL,
					platform_id TEXT NOT NULL,
					respondent_id TEXT NOT NULL,
					created_at INTEGER NOT NULL,
					overall_fraud_score REAL NOT NULL DEFAULT 0,
					is_duplicate INTEGER NOT NULL DEFAULT 0,
					ip_score REAL NOT NULL DEFAULT 0,
					device_score REAL NOT NULL DEFAULT 0,
					duplicate_score REAL NOT NULL DEFAULT 0,
					geo_score REAL NOT NULL DEFAULT 0,
					velocity_score REAL NOT NULL DEFAULT 0,
					flag_reasons TEXT NOT NULL DEFAULT '{}',
					PRIMARY KEY (session_id, created_at),
					FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
				);

				CREATE INDEX IF NOT EXISTS idx_fraud_survey ON fraud_indicators(survey_id, created_at);
				CREATE INDEX IF NOT EXISTS idx_fraud_survey_platform ON fraud_indicators(survey_id, platform_id, created_at);
				CREATE INDEX IF NOT EXISTS idx_fraud_hierarchy ON fraud_indicators(survey_id, platform_id, respondent_id, created_at);
			`,
		},
		{
			version: 7,
			sql: `
				-- Grid analyses; one row per grid question group
				CREATE TABLE IF NOT EXISTS grid_analyses (
					session_id TEXT NOT NULL,
					survey_id TEXT NOT NULL,
					platform_id TEXT NOT NULL,
					respondent_id TEXT NOT NULL,
					question_id TEXT NOT NULL,
					created_at INTEGER NOT NULL,
					straight_lined INTEGER NOT NULL DEFAULT 0,
					straight_line_confidence REAL NOT NULL DEFAULT 0,
					pattern TEXT NOT NULL DEFAULT '',
					variance_score REAL NOT NULL DEFAULT 0,
					satisficing_score REAL NOT NULL DEFAULT 0,
					row_count INTEGER NOT NULL DEFAULT 0,
					PRIMARY KEY (session_id, question_id),
					FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
				);

				CREATE INDEX IF NOT EXISTS idx_grid_analyses_survey ON grid_analyses(survey_id, created_at);
				CREATE INDEX IF NOT EXISTS idx_grid_analyses_hierarchy ON grid_analyses(survey_id, platform_id, respondent_id, created_at);

				-- Timing rows also need hierarchy and a timestamp for rollups
				ALTER TABLE timing_analyses ADD COLUMN survey_id TEXT NOT NULL DEFAULT '';
				ALTER TABLE timing_analyses ADD COLUMN platform_id TEXT NOT NULL DEFAULT '';
				ALTER TABLE timing_analyses ADD COLUMN respondent_id TEXT NOT NULL DEFAULT '';
				ALTER TABLE timing_analyses ADD COLUMN created_at INTEGER NOT NULL DEFAULT 0;
				CREATE INDEX IF NOT EXISTS idx_timing_survey ON timing_analyses(survey_id, created_at);
				CREATE INDEX IF NOT EXISTS idx_timing_hierarchy ON timing_analyses(survey_id, platform_id, respondent_id, created_at);

				-- Responses carry hierarchy for text-quality rollups
				ALTER TABLE survey_responses ADD COLUMN survey_id TEXT NOT NULL DEFAULT '';
				ALTER TABLE survey_responses ADD COLUMN platform_id TEXT NOT NULL DEFAULT '';
				ALTER TABLE survey_responses ADD COLUMN respondent_id TEXT NOT NULL DEFAULT '';
				ALTER TABLE survey_responses ADD COLUMN created_at INTEGER NOT NULL DEFAULT 0;
				CREATE INDEX IF NOT EXISTS idx_responses_survey ON survey_responses(survey_id, created_at);
				CREATE INDEX IF NOT EXISTS idx_responses_hierarchy ON survey_responses(survey_id, platform_id, respondent_id, created_at);
			`,
		},
		{
			version: 8,
			sql: `
				-- Runtime-tunable detection settings
				CREATE TABLE IF NOT EXISTS settings (
					key TEXT PRIMARY KEY,
					value TEXT NOT NULL,
					updated_at INTEGER NOT NULL
				);
			`,
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("run migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO migrations (version, applied_at) VALUES (?, strftime('%s', 'now') * 1000)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}

	return nil
}
