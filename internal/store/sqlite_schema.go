package store

// SQLiteSchema creates the local tables. Uniqueness constraints back the
// lookup-before-insert pattern so a lost race surfaces as ErrConflict.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS memory (
	id TEXT PRIMARY KEY,
	context TEXT NOT NULL DEFAULT '',
	decision TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	department TEXT,
	actor TEXT,
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_timestamp ON memory(timestamp);

CREATE TABLE IF NOT EXISTS long_term_memory (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	embedding BLOB,
	tags TEXT NOT NULL DEFAULT '[]',
	importance INTEGER NOT NULL DEFAULT 2,
	source TEXT NOT NULL DEFAULT '',
	department TEXT,
	actor TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ltm_department ON long_term_memory(department);

CREATE TABLE IF NOT EXISTS departments (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	slack_channel_id TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS staff (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	role TEXT NOT NULL,
	department_id TEXT NOT NULL REFERENCES departments(id),
	status TEXT NOT NULL DEFAULT 'active',
	agent_endpoint_url TEXT,
	created_at TEXT NOT NULL,
	UNIQUE(name, role, department_id)
);

CREATE TABLE IF NOT EXISTS reporting_lines (
	id TEXT PRIMARY KEY,
	manager_id TEXT NOT NULL REFERENCES staff(id),
	report_id TEXT NOT NULL REFERENCES staff(id),
	created_at TEXT NOT NULL,
	UNIQUE(manager_id, report_id)
);

CREATE TABLE IF NOT EXISTS goals (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 3,
	status TEXT NOT NULL DEFAULT 'active',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	details TEXT NOT NULL DEFAULT '',
	department TEXT,
	assignee TEXT,
	tool TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL DEFAULT '{}',
	importance INTEGER NOT NULL DEFAULT 2,
	status TEXT NOT NULL DEFAULT 'queued',
	result TEXT,
	error TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, created_at);

CREATE TABLE IF NOT EXISTS autonomy_policy (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL DEFAULT 'off',
	risk_tolerance INTEGER NOT NULL DEFAULT 2,
	auto_delegate INTEGER NOT NULL DEFAULT 0,
	max_parallel_tasks INTEGER NOT NULL DEFAULT 3,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS kpis (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	value REAL NOT NULL,
	unit TEXT,
	recorded_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rnd_projects (
	id TEXT PRIMARY KEY,
	department_id TEXT NOT NULL REFERENCES departments(id),
	title TEXT NOT NULL,
	hypothesis TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	created_at TEXT NOT NULL,
	UNIQUE(department_id, title)
);

CREATE TABLE IF NOT EXISTS rnd_experiments (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES rnd_projects(id),
	title TEXT NOT NULL,
	method TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'planned',
	result TEXT,
	created_at TEXT NOT NULL,
	UNIQUE(project_id, title)
);

CREATE TABLE IF NOT EXISTS rnd_knowledge (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES rnd_projects(id),
	content TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
`

type columnKind int

const (
	kindText columnKind = iota
	kindInt
	kindReal
	kindBool
	kindJSON
	kindVector
	kindTime
)

type column struct {
	name string
	kind columnKind
}

// sqliteTables lists every column the backend reads and writes. Queries
// naming anything else are rejected.
var sqliteTables = map[string][]column{
	TableMemory: {
		{"id", kindText}, {"context", kindText}, {"decision", kindText}, {"source", kindText},
		{"department", kindText}, {"actor", kindText}, {"timestamp", kindTime},
	},
	TableLongTermMemory: {
		{"id", kindText}, {"content", kindText}, {"embedding", kindVector}, {"tags", kindJSON},
		{"importance", kindInt}, {"source", kindText}, {"department", kindText},
		{"actor", kindText}, {"created_at", kindTime},
	},
	TableDepartments: {
		{"id", kindText}, {"name", kindText}, {"slack_channel_id", kindText}, {"created_at", kindTime},
	},
	TableStaff: {
		{"id", kindText}, {"name", kindText}, {"role", kindText}, {"department_id", kindText},
		{"status", kindText}, {"agent_endpoint_url", kindText}, {"created_at", kindTime},
	},
	TableReportingLines: {
		{"id", kindText}, {"manager_id", kindText}, {"report_id", kindText}, {"created_at", kindTime},
	},
	TableGoals: {
		{"id", kindText}, {"title", kindText}, {"description", kindText}, {"priority", kindInt},
		{"status", kindText}, {"created_at", kindTime},
	},
	TableTasks: {
		{"id", kindText}, {"title", kindText}, {"details", kindText}, {"department", kindText},
		{"assignee", kindText}, {"tool", kindText}, {"payload", kindJSON}, {"importance", kindInt},
		{"status", kindText}, {"result", kindText}, {"error", kindText},
		{"created_at", kindTime}, {"updated_at", kindTime},
	},
	TableAutonomyPolicy: {
		{"id", kindText}, {"mode", kindText}, {"risk_tolerance", kindInt}, {"auto_delegate", kindBool},
		{"max_parallel_tasks", kindInt}, {"updated_at", kindTime},
	},
	TableKPIs: {
		{"id", kindText}, {"name", kindText}, {"value", kindReal}, {"unit", kindText}, {"recorded_at", kindTime},
	},
	TableRnDProjects: {
		{"id", kindText}, {"department_id", kindText}, {"title", kindText}, {"hypothesis", kindText},
		{"status", kindText}, {"created_at", kindTime},
	},
	TableRnDExperiments: {
		{"id", kindText}, {"project_id", kindText}, {"title", kindText}, {"method", kindText},
		{"status", kindText}, {"result", kindText}, {"created_at", kindTime},
	},
	TableRnDKnowledge: {
		{"id", kindText}, {"project_id", kindText}, {"content", kindText}, {"source", kindText},
		{"created_at", kindTime},
	},
}
