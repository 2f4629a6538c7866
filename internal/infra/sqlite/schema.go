package sqlite

// ─── Ledger Schema ──────────────────────────────────────────────────────────

// Migrations returns the schema statements in application order.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Accounts: one row per platform user, never hard-deleted.
		`CREATE TABLE IF NOT EXISTS accounts (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id   TEXT NOT NULL UNIQUE,
			nickname     TEXT NOT NULL DEFAULT '',
			balance      INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			first_charge INTEGER NOT NULL DEFAULT 1,
			inviter_id   TEXT REFERENCES accounts(account_id),
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_inviter ON accounts(inviter_id)`,

		// Append-only coin ledger.
		`CREATE TABLE IF NOT EXISTS transactions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id    TEXT NOT NULL REFERENCES accounts(account_id),
			type          TEXT NOT NULL CHECK (type IN
				('initial','consume','recharge','first_bonus','invite_reward','invited_reward')),
			amount        INTEGER NOT NULL,
			balance_after INTEGER NOT NULL CHECK (balance_after >= 0),
			description   TEXT NOT NULL DEFAULT '',
			order_ref     TEXT,
			created_at    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_time ON transactions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions(type)`,
		// One recharge row and one bonus row per order, ever.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_order_type
			ON transactions(order_ref, type) WHERE order_ref IS NOT NULL`,
		`CREATE TRIGGER IF NOT EXISTS trg_transactions_no_update
			BEFORE UPDATE ON transactions
			BEGIN SELECT RAISE(ABORT, 'transactions are append-only'); END`,
		`CREATE TRIGGER IF NOT EXISTS trg_transactions_no_delete
			BEFORE DELETE ON transactions
			BEGIN SELECT RAISE(ABORT, 'transactions are append-only'); END`,

		// Top-up orders.
		`CREATE TABLE IF NOT EXISTS orders (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			order_no          TEXT NOT NULL UNIQUE,
			account_id        TEXT NOT NULL REFERENCES accounts(account_id),
			product_id        TEXT NOT NULL DEFAULT '',
			amount            INTEGER NOT NULL CHECK (amount >= 0),
			coins             INTEGER NOT NULL CHECK (coins >= 0),
			bonus_coins       INTEGER NOT NULL DEFAULT 0 CHECK (bonus_coins >= 0),
			status            TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending','paid','expired')),
			mock              INTEGER NOT NULL DEFAULT 0,
			platform_order_id TEXT,
			created_at        TEXT NOT NULL,
			paid_at           TEXT,
			expired_at        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_account ON orders(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status, created_at)`,

		// Invitations: an account is invited at most once.
		`CREATE TABLE IF NOT EXISTS invitations (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			inviter_id       TEXT NOT NULL REFERENCES accounts(account_id),
			invitee_id       TEXT NOT NULL REFERENCES accounts(account_id),
			inviter_rewarded INTEGER NOT NULL DEFAULT 0,
			invitee_rewarded INTEGER NOT NULL DEFAULT 0,
			created_at       TEXT NOT NULL,
			CHECK (inviter_id <> invitee_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_invitations_invitee ON invitations(invitee_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invitations_inviter ON invitations(inviter_id)`,
	}
}
