package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_templates (
				id UUID PRIMARY KEY,
				code VARCHAR(100) NOT NULL UNIQUE,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				category VARCHAR(100) NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT true,
				version INT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_templates_category ON workflow_templates(category);
			CREATE INDEX idx_workflow_templates_is_active ON workflow_templates(is_active);

			CREATE TABLE workflow_steps (
				id UUID PRIMARY KEY,
				template_id UUID NOT NULL REFERENCES workflow_templates(id) ON DELETE CASCADE,
				step_number INT NOT NULL,
				name VARCHAR(255) NOT NULL,
				step_type VARCHAR(50) NOT NULL
					CHECK (step_type IN ('form', 'automation', 'approval', 'notification')),
				config JSONB NOT NULL DEFAULT '{}',
				is_required BOOLEAN NOT NULL DEFAULT true,
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (template_id, step_number)
			);

			CREATE INDEX idx_workflow_steps_template_id ON workflow_steps(template_id);

			CREATE TABLE workflow_instances (
				id UUID PRIMARY KEY,
				template_id UUID NOT NULL REFERENCES workflow_templates(id),
				instance_code VARCHAR(100) NOT NULL UNIQUE,
				title VARCHAR(255) NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL
					CHECK (status IN ('pending', 'in_progress', 'completed', 'rejected', 'cancelled')),
				current_step_number INT NOT NULL,
				form_data JSONB NOT NULL DEFAULT '{}',
				metadata JSONB NOT NULL DEFAULT '{}',
				related_entity_type VARCHAR(100) NOT NULL DEFAULT '',
				related_entity_id VARCHAR(255) NOT NULL DEFAULT '',
				initiated_by VARCHAR(255) NOT NULL,
				assigned_to VARCHAR(255) NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				due_date TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_instances_template_id ON workflow_instances(template_id);
			CREATE INDEX idx_workflow_instances_status ON workflow_instances(status);
			CREATE INDEX idx_workflow_instances_initiated_by ON workflow_instances(initiated_by);
			CREATE INDEX idx_workflow_instances_assigned_to ON workflow_instances(assigned_to);

			CREATE TABLE step_executions (
				id UUID PRIMARY KEY,
				instance_id UUID NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				step_number INT NOT NULL,
				status VARCHAR(50) NOT NULL,
				input_data JSONB NOT NULL DEFAULT '{}',
				output_data JSONB NOT NULL DEFAULT '{}',
				assigned_to VARCHAR(255) NOT NULL DEFAULT '',
				completed_by VARCHAR(255) NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_step_executions_instance_id ON step_executions(instance_id);
			-- at most one open execution per (instance, step)
			CREATE UNIQUE INDEX idx_step_executions_open
				ON step_executions(instance_id, step_number)
				WHERE status IN ('pending', 'in_progress');

			CREATE TABLE workflow_approvals (
				id UUID PRIMARY KEY,
				instance_id UUID NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				step_number INT NOT NULL,
				approver_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL
					CHECK (status IN ('pending', 'approved', 'rejected')),
				decision VARCHAR(50) NOT NULL DEFAULT '',
				comment TEXT NOT NULL DEFAULT '',
				attachment_ids JSONB NOT NULL DEFAULT '[]',
				requested_at TIMESTAMP WITH TIME ZONE NOT NULL,
				responded_at TIMESTAMP WITH TIME ZONE,
				UNIQUE (instance_id, step_number, approver_id)
			);

			CREATE INDEX idx_workflow_approvals_instance_id ON workflow_approvals(instance_id);
			CREATE INDEX idx_workflow_approvals_approver_id ON workflow_approvals(approver_id);

			CREATE TABLE workflow_comments (
				id UUID PRIMARY KEY,
				instance_id UUID NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				author_id VARCHAR(255) NOT NULL,
				body TEXT NOT NULL,
				mentions JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_comments_instance_id ON workflow_comments(instance_id);

			CREATE TABLE workflow_activity (
				id UUID PRIMARY KEY,
				instance_id UUID NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				action VARCHAR(50) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				details JSONB NOT NULL DEFAULT '{}',
				step_number INT NOT NULL DEFAULT 0,
				actor_id VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_activity_instance_id ON workflow_activity(instance_id);
			CREATE INDEX idx_workflow_activity_created_at ON workflow_activity(created_at);

			CREATE TABLE workflow_sequences (
				key VARCHAR(255) PRIMARY KEY,
				value BIGINT NOT NULL DEFAULT 0
			);
		`,
	}
}
