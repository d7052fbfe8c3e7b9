package migrations

func init() {
	Register(Migration{
		Timestamp:   "20261005-101500",
		Description: "Projects and uploaded models",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				date TEXT,
				client TEXT,
				contact TEXT,
				notes TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_projects_created_at ON projects(created_at)`,

			// One model per project; replacing a model deletes the old row.
			`CREATE TABLE IF NOT EXISTS models (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL UNIQUE REFERENCES projects(id) ON DELETE CASCADE,
				storage_key TEXT NOT NULL,
				original_name TEXT NOT NULL,
				format TEXT NOT NULL,
				size_bytes INTEGER NOT NULL DEFAULT 0,
				detected_type TEXT,
				status TEXT NOT NULL DEFAULT 'queued',
				generation INTEGER NOT NULL DEFAULT 1,
				dim_x REAL,
				dim_y REAL,
				dim_z REAL,
				volume REAL,
				polygons INTEGER,
				surface_area REAL,
				degenerate_triangles INTEGER,
				flipped_triangles INTEGER,
				watertight INTEGER,
				error_message TEXT,
				started_at TEXT,
				completed_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_models_status ON models(status, created_at)`,
		},
	})
}
