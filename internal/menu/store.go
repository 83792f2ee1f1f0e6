// Package menu is the SQLite-backed cache of the restaurant menu. All reads
// are served from an in-memory copy which is refreshed on every write.
package menu

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Item is one menu entry.
type Item struct {
	ID        int64
	Category  string
	Name      string
	Price     float64
	Available bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Store struct {
	db *sql.DB

	mu    sync.RWMutex
	cache map[string][]Item
}

// Open opens (and if needed creates) the menu database at path and loads
// the cache.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open menu database: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Refresh(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("failed to set journal mode: %w", err)
	}
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS menu_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category TEXT NOT NULL,
		name TEXT NOT NULL,
		price REAL NOT NULL,
		is_available INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("failed to create menu schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Refresh reloads the in-memory cache from the database.
func (s *Store) Refresh() error {
	rows, err := s.db.Query(`SELECT id, category, name, price, is_available, created_at, updated_at
		FROM menu_items ORDER BY category, name`)
	if err != nil {
		return fmt.Errorf("failed to query menu items: %w", err)
	}
	defer rows.Close()

	fresh := map[string][]Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.Category, &item.Name, &item.Price, &item.Available, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan menu item: %w", err)
		}
		fresh[item.Category] = append(fresh[item.Category], item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate menu items: %w", err)
	}

	s.mu.Lock()
	s.cache = fresh
	s.mu.Unlock()
	return nil
}

// Create inserts a new item and refreshes the cache.
func (s *Store) Create(item Item) (Item, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`INSERT INTO menu_items (category, name, price, is_available, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		item.Category, item.Name, item.Price, item.Available, now, now)
	if err != nil {
		return Item{}, fmt.Errorf("failed to insert menu item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Item{}, fmt.Errorf("failed to read inserted id: %w", err)
	}
	item.ID = id
	item.CreatedAt = now
	item.UpdatedAt = now
	return item, s.Refresh()
}

// Update rewrites an existing item by id and refreshes the cache.
func (s *Store) Update(item Item) error {
	res, err := s.db.Exec(`UPDATE menu_items SET category = ?, name = ?, price = ?, is_available = ?, updated_at = ?
		WHERE id = ?`,
		item.Category, item.Name, item.Price, item.Available, time.Now().UTC(), item.ID)
	if err != nil {
		return fmt.Errorf("failed to update menu item %v: %w", item.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no menu item with id %v", item.ID)
	}
	return s.Refresh()
}

// Delete removes an item by id and refreshes the cache.
func (s *Store) Delete(id int64) error {
	res, err := s.db.Exec(`DELETE FROM menu_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete menu item %v: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no menu item with id %v", id)
	}
	return s.Refresh()
}

// Items returns a copy of the cached menu, keyed by category.
func (s *Store) Items() map[string][]Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]Item, len(s.cache))
	for category, items := range s.cache {
		out[category] = append([]Item(nil), items...)
	}
	return out
}

// Context renders the cached menu in the compact form fed to the answer
// engine's prompt, one category block per line group.
func (s *Store) Context() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	categories := make([]string, 0, len(s.cache))
	for category := range s.cache {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var b strings.Builder
	for _, category := range categories {
		items := s.cache[category]
		fmt.Fprintf(&b, "%v[%v]{id,name,price,is_available}:\n", category, len(items))
		for _, item := range items {
			available := 0
			if item.Available {
				available = 1
			}
			fmt.Fprintf(&b, "  %v,%v,%v,%v\n", item.ID, item.Name, item.Price, available)
		}
	}
	return b.String()
}
