package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/leecheenbao/tripeak-b2b/internal/logger"
)

// SQLiteStore backs all persistence with a single SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists. Parent directories are created as needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	log := logger.Component("store")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps concurrent webhook reads from blocking writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	log.Info().Str("path", path).Msg("sqlite store initialized")
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			company_name TEXT NOT NULL,
			contact_name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			phone TEXT,
			role TEXT NOT NULL DEFAULT 'dealer',
			line_id TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_users_line_id ON users(line_id);

		CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			sku TEXT NOT NULL UNIQUE,
			price REAL NOT NULL,
			stock_quantity INTEGER NOT NULL DEFAULT 0,
			unit TEXT NOT NULL DEFAULT '件',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			order_number TEXT NOT NULL UNIQUE,
			dealer_id TEXT NOT NULL,
			total_amount REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			note TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (dealer_id) REFERENCES users(id)
		);

		CREATE TABLE IF NOT EXISTS order_items (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			product_id TEXT,
			name TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			price REAL NOT NULL,
			unit TEXT NOT NULL DEFAULT '件',
			FOREIGN KEY (order_id) REFERENCES orders(id)
		);

		CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);

		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			line_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'idle',
			context TEXT NOT NULL DEFAULT '{}',
			last_message TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversation_messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_conversation_messages_conv
			ON conversation_messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS line_message_templates (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL DEFAULT 'text',
			content TEXT NOT NULL,
			title TEXT,
			"trigger" TEXT NOT NULL DEFAULT 'manual',
			is_template INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_templates_trigger
			ON line_message_templates("trigger", is_template);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UserByLineID returns the business user linked to the given LINE account.
func (s *SQLiteStore) UserByLineID(ctx context.Context, lineID string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, company_name, contact_name, email, phone, role, line_id, is_active, created_at
		FROM users WHERE line_id = ? AND is_active = 1`, lineID)
	return scanUser(row)
}

// AdminsWithLineID returns all active admins that have a LINE account linked.
func (s *SQLiteStore) AdminsWithLineID(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_name, contact_name, email, phone, role, line_id, is_active, created_at
		FROM users WHERE role = 'admin' AND is_active = 1 AND line_id IS NOT NULL AND line_id != ''
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying admins: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CreateUser inserts a user, generating an id when missing.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, company_name, contact_name, email, phone, role, line_id, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.CompanyName, u.ContactName, u.Email, u.Phone, u.Role, u.LineID, boolToInt(u.IsActive), u.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// CreateProduct inserts a product, generating an id when missing.
func (s *SQLiteStore) CreateProduct(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, sku, price, stock_quantity, unit, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.SKU, p.Price, p.StockQuantity, p.Unit, boolToInt(p.IsActive), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting product: %w", err)
	}
	return nil
}

// SearchProducts performs a case-insensitive substring match on product name.
func (s *SQLiteStore) SearchProducts(ctx context.Context, name string, limit int) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, sku, price, stock_quantity, unit, is_active, created_at
		FROM products
		WHERE is_active = 1 AND lower(name) LIKE '%' || lower(?) || '%'
		ORDER BY name
		LIMIT ?`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("searching products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		var active int
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.StockQuantity, &p.Unit, &active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		p.IsActive = active != 0
		products = append(products, p)
	}
	return products, rows.Err()
}

// CreateOrder inserts an order with its items.
func (s *SQLiteStore) CreateOrder(ctx context.Context, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, dealer_id, total_amount, status, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Number, o.Dealer.ID, o.TotalAmount, o.Status, o.Note, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}
	for i := range o.Items {
		it := &o.Items[i]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, name, quantity, price, unit)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), o.ID, it.ProductID, it.Name, it.Quantity, it.Price, it.Unit)
		if err != nil {
			return fmt.Errorf("inserting order item: %w", err)
		}
	}
	return tx.Commit()
}

// OrderByNumber returns the order with the given number, dealer and items
// resolved. Returns ErrNotFound for unknown numbers.
func (s *SQLiteStore) OrderByNumber(ctx context.Context, number string) (*Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT o.id, o.order_number, o.total_amount, o.status, COALESCE(o.note, ''), o.created_at,
			u.id, u.company_name, u.contact_name, u.email, COALESCE(u.phone, ''), u.role,
			COALESCE(u.line_id, ''), u.is_active, u.created_at
		FROM orders o
		JOIN users u ON u.id = o.dealer_id
		WHERE o.order_number = ?`, number)

	var o Order
	var active int
	err := row.Scan(&o.ID, &o.Number, &o.TotalAmount, &o.Status, &o.Note, &o.CreatedAt,
		&o.Dealer.ID, &o.Dealer.CompanyName, &o.Dealer.ContactName, &o.Dealer.Email,
		&o.Dealer.Phone, &o.Dealer.Role, &o.Dealer.LineID, &active, &o.Dealer.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning order: %w", err)
	}
	o.Dealer.IsActive = active != 0

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(product_id, ''), name, quantity, price, unit
		FROM order_items WHERE order_id = ? ORDER BY rowid`, o.ID)
	if err != nil {
		return nil, fmt.Errorf("querying order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Quantity, &it.Price, &it.Unit); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

// ConversationByLineID returns the conversation for a LINE account, or
// ErrNotFound when the account has no conversation yet.
func (s *SQLiteStore) ConversationByLineID(ctx context.Context, lineID string) (*ConversationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, line_id, user_id, state, context, COALESCE(last_message, ''), created_at, updated_at
		FROM conversations WHERE line_id = ?`, lineID)

	var c ConversationRecord
	err := row.Scan(&c.ID, &c.LineID, &c.UserID, &c.State, &c.Context, &c.LastMessage, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	return &c, nil
}

// CreateConversation inserts a new conversation record.
func (s *SQLiteStore) CreateConversation(ctx context.Context, c *ConversationRecord) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, line_id, user_id, state, context, last_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.LineID, c.UserID, c.State, c.Context, c.LastMessage, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// SaveConversation updates state, context and last message. Last write wins;
// callers serialize per account above this layer.
func (s *SQLiteStore) SaveConversation(ctx context.Context, c *ConversationRecord) error {
	c.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET state = ?, context = ?, last_message = ?, updated_at = ?
		WHERE id = ?`,
		c.State, c.Context, c.LastMessage, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}
	return nil
}

// AppendConversationMessage inserts one history entry.
func (s *SQLiteStore) AppendConversationMessage(ctx context.Context, m *ConversationMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Role, m.Content, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting conversation message: %w", err)
	}
	return nil
}

// ConversationMessages returns the most recent limit history entries in
// chronological order. A limit of 0 returns the full history.
func (s *SQLiteStore) ConversationMessages(ctx context.Context, conversationID string, limit int) ([]ConversationMessage, error) {
	q := `
		SELECT id, conversation_id, role, content, created_at
		FROM (
			SELECT id, conversation_id, role, content, created_at, rowid
			FROM conversation_messages
			WHERE conversation_id = ?
			ORDER BY rowid DESC
			LIMIT ?
		) ORDER BY rowid`
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, q, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying conversation messages: %w", err)
	}
	defer rows.Close()

	var msgs []ConversationMessage
	for rows.Next() {
		var m ConversationMessage
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ResetStaleConversations moves conversations stuck in a waiting state for
// longer than the cutoff back to idle. Returns the number reset.
func (s *SQLiteStore) ResetStaleConversations(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET state = 'idle', context = '{}', updated_at = ?
		WHERE state IN ('waiting_order_number', 'waiting_product_query', 'waiting_stock_query')
			AND updated_at < ?`,
		time.Now().UTC(), olderThan)
	if err != nil {
		return 0, fmt.Errorf("resetting stale conversations: %w", err)
	}
	return res.RowsAffected()
}

// TemplateByTrigger returns the notification template for a trigger.
func (s *SQLiteStore) TemplateByTrigger(ctx context.Context, trigger string) (*MessageTemplate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, content, COALESCE(title, ''), "trigger", is_template, created_at
		FROM line_message_templates
		WHERE "trigger" = ? AND is_template = 1`, trigger)

	var t MessageTemplate
	var isTemplate int
	err := row.Scan(&t.ID, &t.Type, &t.Content, &t.Title, &t.Trigger, &isTemplate, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning template: %w", err)
	}
	t.IsTemplate = isTemplate != 0
	return &t, nil
}

// CreateTemplate inserts a message template.
func (s *SQLiteStore) CreateTemplate(ctx context.Context, t *MessageTemplate) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO line_message_templates (id, type, content, title, "trigger", is_template, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Type, t.Content, t.Title, t.Trigger, boolToInt(t.IsTemplate), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting template: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var lineID sql.NullString
	var phone sql.NullString
	var active int
	err := row.Scan(&u.ID, &u.CompanyName, &u.ContactName, &u.Email, &phone, &u.Role, &lineID, &active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	u.Phone = phone.String
	u.LineID = lineID.String
	u.IsActive = active != 0
	return &u, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
