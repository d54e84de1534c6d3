package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	seq INTEGER NOT NULL,
	agent_id TEXT NOT NULL,
	order_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL NOT NULL,
	price REAL NOT NULL,
	fee REAL NOT NULL,
	realized_pnl REAL NOT NULL,
	closing INTEGER NOT NULL,
	time DATETIME NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	agent_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	capital REAL NOT NULL,
	balance REAL NOT NULL,
	margin_used REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS order_events (
	order_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	type TEXT NOT NULL,
	quantity REAL NOT NULL,
	limit_price REAL NOT NULL,
	from_status TEXT NOT NULL,
	to_status TEXT NOT NULL,
	reason TEXT NOT NULL,
	time DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS performance (
	agent_id TEXT NOT NULL,
	as_of DATETIME NOT NULL,
	sharpe REAL NOT NULL,
	sortino REAL NOT NULL,
	max_drawdown REAL NOT NULL,
	current_drawdown REAL NOT NULL,
	volatility REAL NOT NULL,
	total_return REAL NOT NULL,
	win_rate REAL NOT NULL,
	profit_factor REAL NOT NULL,
	total_trades INTEGER NOT NULL,
	winning_trades INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
	agent_id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	profile TEXT NOT NULL,
	symbols TEXT NOT NULL,
	decider TEXT NOT NULL,
	initial_capital REAL NOT NULL,
	capital REAL NOT NULL,
	peak_capital REAL NOT NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_agent_seq ON trades(agent_id, seq);
CREATE INDEX IF NOT EXISTS idx_equity_agent_time ON equity(agent_id, time);
CREATE INDEX IF NOT EXISTS idx_order_events_order ON order_events(order_id, time);
CREATE INDEX IF NOT EXISTS idx_performance_agent_time ON performance(agent_id, as_of);
`
