package migrations

func init() {
	Register(Migration{
		Timestamp:   "20261005-103000",
		Description: "Calculation parameters, results and generated texts",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS calc_params (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL UNIQUE REFERENCES projects(id) ON DELETE CASCADE,
				revision INTEGER NOT NULL DEFAULT 1,
				technology TEXT NOT NULL,
				material_density REAL NOT NULL,
				material_price REAL NOT NULL,
				waste_factor REAL NOT NULL,
				infill REAL NOT NULL,
				support_percent REAL NOT NULL,
				print_time_h REAL NOT NULL,
				post_process_time_h REAL NOT NULL,
				modeling_time_h REAL NOT NULL,
				quantity INTEGER NOT NULL,
				is_batch INTEGER NOT NULL DEFAULT 0,
				markup REAL NOT NULL,
				reject_rate REAL NOT NULL,
				tax_rate REAL NOT NULL,
				depreciation_rate REAL NOT NULL,
				energy_rate REAL NOT NULL,
				hourly_rate REAL NOT NULL,
				currency TEXT NOT NULL,
				language TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS calc_results (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL UNIQUE REFERENCES projects(id) ON DELETE CASCADE,
				model_id TEXT NOT NULL,
				model_generation INTEGER NOT NULL,
				params_revision INTEGER NOT NULL,
				weight REAL NOT NULL,
				material_cost REAL NOT NULL,
				energy_cost REAL NOT NULL,
				depreciation REAL NOT NULL,
				prep_cost REAL NOT NULL,
				reject_cost REAL NOT NULL,
				unit_cost REAL NOT NULL,
				profit REAL NOT NULL,
				tax REAL NOT NULL,
				price_per_unit REAL NOT NULL,
				total_price REAL NOT NULL,
				quantity INTEGER NOT NULL,
				is_batch INTEGER NOT NULL DEFAULT 0,
				currency TEXT NOT NULL,
				calculated_at TEXT NOT NULL
			)`,

			// Generated text lives and dies with the result it describes.
			`CREATE TABLE IF NOT EXISTS ai_texts (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL UNIQUE REFERENCES projects(id) ON DELETE CASCADE,
				calc_result_id TEXT NOT NULL REFERENCES calc_results(id) ON DELETE CASCADE,
				language TEXT NOT NULL,
				description TEXT NOT NULL,
				commercial_text TEXT NOT NULL,
				description_en TEXT NOT NULL DEFAULT '',
				description_ru TEXT NOT NULL DEFAULT '',
				commercial_text_en TEXT NOT NULL DEFAULT '',
				commercial_text_ru TEXT NOT NULL DEFAULT '',
				generator TEXT NOT NULL,
				generated_at TEXT NOT NULL
			)`,
		},
	})
}
