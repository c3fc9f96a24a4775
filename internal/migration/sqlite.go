package migration

// SQLiteSchema mirrors the Postgres migrations with sqlite column types.
func SQLiteSchema() []string {
	out := make([]string, len(sqliteSchema))
	copy(out, sqliteSchema)
	return out
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS organizations (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		stripe_secret_key TEXT,
		stripe_webhook_secret TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_organizations_slug ON organizations (slug)`,
	`CREATE TABLE IF NOT EXISTS identity_users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		email_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_identity_users_email ON identity_users (email)`,
	`CREATE TABLE IF NOT EXISTS identity_links (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		email TEXT NOT NULL,
		type TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		org_id BIGINT,
		email TEXT NOT NULL,
		display_name TEXT,
		role TEXT NOT NULL DEFAULT 'user',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		stripe_customer_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		temp_password TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_customers_stripe_customer_id ON customers (stripe_customer_id)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		stripe_transaction_id TEXT NOT NULL,
		stripe_customer_id TEXT,
		user_id TEXT,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		description TEXT,
		customer_name TEXT,
		customer_email TEXT,
		payment_method TEXT,
		refunded_at DATETIME,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_transactions_stripe_transaction_id ON transactions (stripe_transaction_id)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		transaction_id BIGINT NOT NULL,
		profile_id TEXT NOT NULL,
		purchased_item_id TEXT NOT NULL,
		product_name TEXT,
		package TEXT,
		measure TEXT,
		start_date DATETIME NOT NULL,
		end_date DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_purchases_item_profile_transaction ON purchases (purchased_item_id, profile_id, transaction_id)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		stripe_subscription_id TEXT NOT NULL,
		stripe_customer_id TEXT,
		user_id TEXT,
		status TEXT NOT NULL,
		price_id TEXT,
		current_period_start DATETIME,
		current_period_end DATETIME,
		cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
		cancelled_at DATETIME,
		metadata TEXT NOT NULL DEFAULT '{}',
		source_updated_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_subscriptions_stripe_subscription_id ON subscriptions (stripe_subscription_id)`,
	`CREATE TABLE IF NOT EXISTS products (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		stripe_product_id TEXT NOT NULL,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		description TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		default_price_id TEXT,
		images TEXT NOT NULL DEFAULT '{}',
		metadata TEXT NOT NULL DEFAULT '{}',
		source_updated_at DATETIME NOT NULL,
		deleted_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_products_stripe_product_id ON products (stripe_product_id)`,
	`CREATE TABLE IF NOT EXISTS prices (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		stripe_price_id TEXT NOT NULL,
		stripe_product_id TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		currency TEXT NOT NULL,
		unit_amount TEXT,
		type TEXT NOT NULL,
		recurring_interval TEXT,
		recurring_interval_count BIGINT,
		nickname TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		source_updated_at DATETIME NOT NULL,
		deleted_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_prices_stripe_price_id ON prices (stripe_price_id)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
		id BIGINT PRIMARY KEY,
		org_id BIGINT NOT NULL,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_webhook_events_provider_event_id ON webhook_events (provider, provider_event_id)`,
}
