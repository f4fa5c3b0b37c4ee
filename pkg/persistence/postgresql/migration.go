package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions and their execution records
			CREATE TABLE workflow_definitions (
				id TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_kind VARCHAR(50) NOT NULL CHECK (trigger_kind IN ('MANUAL', 'EVENT_ALERT', 'SCHEDULE', 'API')),
				trigger_config JSONB NOT NULL DEFAULT '{}',
				conditions JSONB NOT NULL DEFAULT '[]',
				actions JSONB NOT NULL DEFAULT '[]',
				active BOOLEAN NOT NULL DEFAULT true,
				priority INT NOT NULL DEFAULT 0,
				timeout_minutes INT,
				version INT NOT NULL DEFAULT 1,
				created_by TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_definitions_organization ON workflow_definitions(organization_id);
			CREATE INDEX idx_workflow_definitions_trigger_kind ON workflow_definitions(trigger_kind, active);

			CREATE TABLE workflow_instances (
				id TEXT PRIMARY KEY,
				definition_id TEXT NOT NULL REFERENCES workflow_definitions(id),
				organization_id TEXT NOT NULL,
				status VARCHAR(50) NOT NULL,
				trigger_kind VARCHAR(50) NOT NULL,
				trigger_payload JSONB,
				context JSONB,
				related_entity_id TEXT,
				triggered_by TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				error_message TEXT NOT NULL DEFAULT '',
				retry_count INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_instances_status ON workflow_instances(status);
			CREATE INDEX idx_workflow_instances_definition ON workflow_instances(definition_id);

			CREATE TABLE workflow_steps (
				id TEXT PRIMARY KEY,
				instance_id TEXT NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				action_type VARCHAR(50) NOT NULL,
				order_index INT NOT NULL,
				status VARCHAR(50) NOT NULL,
				input JSONB,
				output JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				executed_by TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_workflow_steps_instance ON workflow_steps(instance_id, order_index);

			CREATE TABLE workflow_approvals (
				id TEXT PRIMARY KEY,
				instance_id TEXT NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				step_id TEXT NOT NULL DEFAULT '',
				approver_id TEXT NOT NULL,
				status VARCHAR(50) NOT NULL,
				comments TEXT NOT NULL DEFAULT '',
				required BOOLEAN NOT NULL DEFAULT true,
				deadline TIMESTAMP WITH TIME ZONE,
				decided_at TIMESTAMP WITH TIME ZONE,
				decided_by TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_approvals_instance ON workflow_approvals(instance_id);
			CREATE INDEX idx_workflow_approvals_pending_deadline ON workflow_approvals(deadline) WHERE status = 'PENDING';
		`,
		2: `
			-- Custody records touched by workflow actions
			CREATE TABLE locations (
				id TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL,
				name VARCHAR(255) NOT NULL,
				kind VARCHAR(100) NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_locations_organization_name ON locations(organization_id, LOWER(name));

			CREATE TABLE assets (
				id TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL,
				name VARCHAR(255) NOT NULL,
				current_location_id TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				attributes JSONB,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE movements (
				id TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL,
				asset_id TEXT NOT NULL REFERENCES assets(id),
				from_location_id TEXT NOT NULL DEFAULT '',
				to_location_id TEXT NOT NULL REFERENCES locations(id),
				kind VARCHAR(50) NOT NULL,
				reason TEXT NOT NULL DEFAULT '',
				actor_id TEXT NOT NULL,
				instance_id TEXT NOT NULL DEFAULT '',
				occurred_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_movements_asset ON movements(asset_id, occurred_at);

			CREATE TABLE audit_records (
				id TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL,
				entity_type VARCHAR(100) NOT NULL,
				entity_id TEXT NOT NULL,
				action VARCHAR(100) NOT NULL,
				actor_id TEXT NOT NULL,
				old_values JSONB,
				new_values JSONB,
				instance_id TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_audit_records_entity ON audit_records(entity_id, created_at);
		`,
		3: `
			-- Directory and alerts
			CREATE TABLE users (
				id TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL,
				name VARCHAR(255) NOT NULL,
				email VARCHAR(255) NOT NULL DEFAULT '',
				roles TEXT[] NOT NULL DEFAULT '{}',
				active BOOLEAN NOT NULL DEFAULT true
			);

			CREATE INDEX idx_users_organization ON users(organization_id);
			CREATE INDEX idx_users_roles ON users USING GIN (roles);

			CREATE TABLE alerts (
				id TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL,
				device_id TEXT NOT NULL DEFAULT '',
				type VARCHAR(100) NOT NULL,
				severity VARCHAR(50) NOT NULL DEFAULT '',
				message TEXT NOT NULL DEFAULT '',
				threshold DOUBLE PRECISION,
				current_value DOUBLE PRECISION,
				instance_id TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_alerts_organization ON alerts(organization_id, created_at);
		`,
	}
}
