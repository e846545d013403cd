package marketdata

// schema creates every table the repository touches. It is applied on
// startup and is safe to run against an existing database.
const schema = `
CREATE TABLE IF NOT EXISTS universe (
	symbol     TEXT PRIMARY KEY,
	added_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS price_history (
	symbol     TEXT NOT NULL,
	date       TEXT NOT NULL,
	close      REAL NOT NULL,
	PRIMARY KEY (symbol, date)
);

CREATE INDEX IF NOT EXISTS idx_price_history_symbol_date
	ON price_history(symbol, date);

CREATE TABLE IF NOT EXISTS analyst_targets (
	symbol       TEXT PRIMARY KEY,
	target_price REAL NOT NULL,
	updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sentiment (
	symbol     TEXT PRIMARY KEY,
	score      REAL NOT NULL,
	trend      TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	symbol        TEXT PRIMARY KEY,
	shares        REAL NOT NULL,
	cost_basis    REAL NOT NULL,
	current_price REAL NOT NULL,
	updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS portfolio_cash (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	cash       REAL NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS optimization_runs (
	run_id     TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	record     TEXT NOT NULL
);
`
