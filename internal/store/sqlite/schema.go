package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS incidents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	severity TEXT NOT NULL,
	source TEXT,
	node_id TEXT,
	status TEXT NOT NULL,
	metadata TEXT,
	created_at INTEGER NOT NULL,
	resolved_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status);

CREATE TABLE IF NOT EXISTS remediations (
	id TEXT PRIMARY KEY,
	incident_id TEXT,
	action_type TEXT NOT NULL,
	target_node_id TEXT NOT NULL,
	parameters TEXT,
	status TEXT NOT NULL,
	result TEXT,
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_remediations_incident ON remediations(incident_id);
CREATE INDEX IF NOT EXISTS idx_remediations_status ON remediations(status);

CREATE TABLE IF NOT EXISTS remediation_logs (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	remediation_id TEXT NOT NULL,
	action TEXT NOT NULL,
	status TEXT NOT NULL,
	output TEXT,
	error TEXT,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_logs_remediation ON remediation_logs(remediation_id);

CREATE TABLE IF NOT EXISTS analyses (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	incident_id TEXT NOT NULL,
	analysis_type TEXT NOT NULL,
	diagnosis TEXT,
	recommended_actions TEXT,
	confidence REAL,
	reasoning TEXT,
	engine TEXT,
	input TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_incident ON analyses(incident_id, created_at);

CREATE TABLE IF NOT EXISTS notifications (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	incident_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	status TEXT NOT NULL,
	severity TEXT,
	title TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_incident ON notifications(incident_id);

CREATE TABLE IF NOT EXISTS nodes (
	id TEXT PRIMARY KEY,
	hostname TEXT,
	ip_address TEXT,
	port INTEGER,
	node_type TEXT,
	os_type TEXT,
	metadata TEXT,
	class_kind TEXT NOT NULL DEFAULT '',
	class_family TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS alert_rules (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	node_id TEXT NOT NULL,
	metric_name TEXT NOT NULL,
	condition TEXT NOT NULL,
	threshold REAL NOT NULL,
	severity TEXT NOT NULL,
	enabled INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS metrics (
	node_id TEXT NOT NULL,
	metric_name TEXT NOT NULL,
	value REAL NOT NULL,
	unit TEXT,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_series ON metrics(node_id, metric_name, ts);
`
