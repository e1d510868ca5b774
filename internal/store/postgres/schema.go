package postgres

const schema = `
CREATE TABLE IF NOT EXISTS customers (
	id                  BIGSERIAL PRIMARY KEY,
	business_name       TEXT NOT NULL,
	max_running_balance NUMERIC(14,2) NOT NULL DEFAULT 0,
	is_default          BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	role          TEXT NOT NULL,
	password_hash TEXT NOT NULL DEFAULT '',
	trial_mode    BOOLEAN NOT NULL DEFAULT false,
	active        BOOLEAN NOT NULL DEFAULT true,
	is_default    BOOLEAN NOT NULL DEFAULT false,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS document_types (
	id             BIGSERIAL PRIMARY KEY,
	description    TEXT NOT NULL,
	active         BOOLEAN NOT NULL DEFAULT true,
	reenters_stock BOOLEAN NOT NULL DEFAULT false,
	is_default     BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS treasury_accounts (
	id          BIGSERIAL PRIMARY KEY,
	description TEXT NOT NULL,
	kind        TEXT
);

CREATE TABLE IF NOT EXISTS articles (
	id          BIGSERIAL PRIMARY KEY,
	description TEXT NOT NULL,
	unit_price  NUMERIC(14,2) NOT NULL DEFAULT 0,
	active      BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS batches (
	id               BIGSERIAL PRIMARY KEY,
	user_id          BIGINT NOT NULL REFERENCES users(id),
	cash_register_id BIGINT NOT NULL,
	open             BOOLEAN NOT NULL DEFAULT true,
	type             TEXT NOT NULL,
	opened_at        TIMESTAMPTZ NOT NULL,
	closed_at        TIMESTAMPTZ,
	notes            TEXT,
	initial_balance  NUMERIC(14,2) NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS batches_one_open_per_user ON batches (user_id) WHERE open;

CREATE TABLE IF NOT EXISTS sale_orders (
	id               BIGSERIAL PRIMARY KEY,
	customer_id      BIGINT NOT NULL REFERENCES customers(id),
	user_id          BIGINT NOT NULL REFERENCES users(id),
	batch_id         BIGINT NOT NULL REFERENCES batches(id),
	document_type_id BIGINT NOT NULL REFERENCES document_types(id),
	sale_date        TEXT NOT NULL,
	total            NUMERIC(14,2) NOT NULL,
	subtotal         NUMERIC(14,2) NOT NULL
);

CREATE TABLE IF NOT EXISTS sale_line_details (
	id         BIGSERIAL PRIMARY KEY,
	order_id   BIGINT NOT NULL REFERENCES sale_orders(id),
	article_id BIGINT NOT NULL REFERENCES articles(id),
	quantity   INTEGER NOT NULL CHECK (quantity > 0),
	unit_price NUMERIC(14,2) NOT NULL
);

CREATE TABLE IF NOT EXISTS stock_movements (
	id         BIGSERIAL PRIMARY KEY,
	order_id   BIGINT NOT NULL REFERENCES sale_orders(id),
	article_id BIGINT NOT NULL REFERENCES articles(id),
	origin     TEXT NOT NULL,
	direction  TEXT NOT NULL,
	quantity   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sale_payments (
	id         BIGSERIAL PRIMARY KEY,
	order_id   BIGINT NOT NULL REFERENCES sale_orders(id),
	account_id BIGINT NOT NULL REFERENCES treasury_accounts(id),
	amount     NUMERIC(14,2) NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id         BIGSERIAL PRIMARY KEY,
	batch_id   BIGINT NOT NULL REFERENCES batches(id),
	account_id BIGINT NOT NULL REFERENCES treasury_accounts(id),
	direction  TEXT NOT NULL,
	amount     NUMERIC(14,2) NOT NULL
);

CREATE TABLE IF NOT EXISTS running_account_records (
	id          BIGSERIAL PRIMARY KEY,
	order_id    BIGINT NOT NULL REFERENCES sale_orders(id),
	customer_id BIGINT NOT NULL REFERENCES customers(id),
	total       NUMERIC(14,2) NOT NULL,
	balance     NUMERIC(14,2) NOT NULL,
	status      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id          TEXT PRIMARY KEY,
	actor_email TEXT NOT NULL,
	actor_role  TEXT NOT NULL,
	action      TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	detail      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
`
