package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS templates (
				id TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL,
				code TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				deleted_at TIMESTAMP WITH TIME ZONE,
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_templates_org_code
				ON templates (organization_id, code) WHERE deleted_at IS NULL;
			CREATE INDEX IF NOT EXISTS idx_templates_org ON templates (organization_id);
		`,
		2: `
			CREATE TABLE IF NOT EXISTS records (
				id TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL,
				template_id TEXT NOT NULL,
				code TEXT NOT NULL,
				state_id TEXT NOT NULL,
				version INTEGER NOT NULL DEFAULT 1,
				locked BOOLEAN NOT NULL DEFAULT FALSE,
				deleted_at TIMESTAMP WITH TIME ZONE,
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_records_org_code
				ON records (organization_id, code) WHERE deleted_at IS NULL;
			CREATE INDEX IF NOT EXISTS idx_records_org_template
				ON records (organization_id, template_id);
			CREATE INDEX IF NOT EXISTS idx_records_state ON records (state_id);
		`,
		3: `
			CREATE TABLE IF NOT EXISTS sequence_counters (
				key TEXT PRIMARY KEY,
				last_number BIGINT NOT NULL DEFAULT 0,
				total_issued BIGINT NOT NULL DEFAULT 0,
				last_issued TIMESTAMP WITH TIME ZONE,
				consecutive_errors INTEGER NOT NULL DEFAULT 0,
				last_error TEXT,
				format JSONB
			);
		`,
	}
}
