// Package contacts implements the local address book.
package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	logger "log/slog"

	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/infra/storage"
)

// ErrInvalidContact is returned when a contact has no name or a malformed address.
var ErrInvalidContact = errors.New("contact requires a name and a valid address")

// Registry keeps contacts in memory and persists the whole list as one JSON
// document under storage.KeyContacts after every mutation.
type Registry struct {
	store storage.KVStore
	log   *logger.Logger
	now   func() time.Time

	mu       sync.RWMutex
	contacts []domain.ContactRecord
	lastID   int64
}

func NewRegistry(store storage.KVStore) *Registry {
	return &Registry{
		store: store,
		log:   logger.Default().With("component", "contacts"),
		now:   time.Now,
	}
}

// Load replaces the in-memory list with the persisted one. A missing key
// yields an empty list; a corrupt document leaves the list empty and is reported.
func (r *Registry) Load(ctx context.Context) error {
	raw, err := storage.GetOrDefault(ctx, r.store, storage.KeyContacts, "")
	if err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts = nil
	if raw == "" {
		return nil
	}
	var list []domain.ContactRecord
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		r.log.Error("stored contacts are corrupt", "error", err)
		return fmt.Errorf("decode contacts: %w", err)
	}
	r.contacts = list
	for _, c := range list {
		r.lastID = max(r.lastID, c.ID)
	}
	return nil
}

// List returns a copy of all contacts in insertion order.
func (r *Registry) List() []domain.ContactRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ContactRecord, len(r.contacts))
	copy(out, r.contacts)
	return out
}

func (r *Registry) Get(id int64) (domain.ContactRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexOf(id)
	if i < 0 {
		return domain.ContactRecord{}, domain.ErrContactNotFound
	}
	return r.contacts[i], nil
}

// Add validates and stores a new contact. An address already present
// (case-insensitive) is rejected.
func (r *Registry) Add(ctx context.Context, c domain.ContactRecord) (domain.ContactRecord, error) {
	if err := validate(c); err != nil {
		return domain.ContactRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.contacts {
		if domain.SameAddress(existing.WalletAddress, c.WalletAddress) {
			return domain.ContactRecord{}, fmt.Errorf("%w: %s", domain.ErrDuplicateContact, existing.Name)
		}
	}

	now := r.now().UnixMilli()
	c.ID = r.nextID(now)
	c.Name = strings.TrimSpace(c.Name)
	c.WalletAddress = strings.TrimSpace(c.WalletAddress)
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Color == "" {
		c.Color = domain.DefaultContactColor
	}

	next := append(r.snapshotLocked(), c)
	if err := r.persistLocked(ctx, next); err != nil {
		return domain.ContactRecord{}, err
	}
	r.log.Debug("contact added", "id", c.ID, "address", c.WalletAddress)
	return c, nil
}

// Update merges changes into contact id. Duplicate addresses are allowed here.
func (r *Registry) Update(ctx context.Context, id int64, changes domain.ContactRecord) (domain.ContactRecord, error) {
	if err := validate(changes); err != nil {
		return domain.ContactRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return domain.ContactRecord{}, domain.ErrContactNotFound
	}

	updated := r.contacts[i]
	updated.Name = strings.TrimSpace(changes.Name)
	updated.WalletAddress = strings.TrimSpace(changes.WalletAddress)
	updated.Description = changes.Description
	if changes.Color != "" {
		updated.Color = changes.Color
	}
	updated.UpdatedAt = r.now().UnixMilli()

	next := r.snapshotLocked()
	next[i] = updated
	if err := r.persistLocked(ctx, next); err != nil {
		return domain.ContactRecord{}, err
	}
	return updated, nil
}

func (r *Registry) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return domain.ErrContactNotFound
	}
	next := r.snapshotLocked()
	next = append(next[:i], next[i+1:]...)
	return r.persistLocked(ctx, next)
}

// Search matches term against name, address and description, case-insensitively.
// An empty term returns every contact.
func (r *Registry) Search(term string) []domain.ContactRecord {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return r.List()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ContactRecord
	for _, c := range r.contacts {
		if strings.Contains(strings.ToLower(c.Name), term) ||
			strings.Contains(strings.ToLower(c.WalletAddress), term) ||
			strings.Contains(strings.ToLower(c.Description), term) {
			out = append(out, c)
		}
	}
	return out
}

// NameFor returns the contact name saved for address.
func (r *Registry) NameFor(address string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.contacts {
		if domain.SameAddress(c.WalletAddress, address) {
			return c.Name, true
		}
	}
	return "", false
}

// Export writes all contacts as an indented JSON array.
func (r *Registry) Export(w io.Writer) error {
	list := r.List()
	if list == nil {
		list = []domain.ContactRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}

// ExportFileName is the suggested file name for an export made at now.
func ExportFileName(now time.Time) string {
	return fmt.Sprintf("contacts-%s.json", now.Format("2006-01-02"))
}

// Import appends the contacts read from src. The document must be a JSON
// array; anything else fails with domain.ErrImportFormat and changes nothing.
// Incoming ids that are missing or already in use get a fresh id.
func (r *Registry) Import(ctx context.Context, src io.Reader) (int, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return 0, fmt.Errorf("read import: %w", err)
	}
	var list []domain.ContactRecord
	if err := json.Unmarshal(data, &list); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrImportFormat, err)
	}
	if list == nil {
		return 0, domain.ErrImportFormat
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UnixMilli()
	next := r.snapshotLocked()
	taken := make(map[int64]bool, len(next)+len(list))
	for _, c := range next {
		taken[c.ID] = true
		r.lastID = max(r.lastID, c.ID)
	}
	for _, c := range list {
		r.lastID = max(r.lastID, c.ID)
	}
	for _, c := range list {
		if c.ID == 0 || taken[c.ID] {
			c.ID = r.nextID(now)
		}
		taken[c.ID] = true
		if c.Color == "" {
			c.Color = domain.DefaultContactColor
		}
		if c.CreatedAt == 0 {
			c.CreatedAt = now
		}
		if c.UpdatedAt == 0 {
			c.UpdatedAt = c.CreatedAt
		}
		next = append(next, c)
	}
	if err := r.persistLocked(ctx, next); err != nil {
		return 0, err
	}
	r.log.Info("contacts imported", "count", len(list))
	return len(list), nil
}

func validate(c domain.ContactRecord) error {
	if strings.TrimSpace(c.Name) == "" || !domain.IsValidAddress(strings.TrimSpace(c.WalletAddress)) {
		return ErrInvalidContact
	}
	return nil
}

func (r *Registry) indexOf(id int64) int {
	for i, c := range r.contacts {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// nextID returns a millisecond timestamp id, bumped past the last issued id.
func (r *Registry) nextID(now int64) int64 {
	if now <= r.lastID {
		now = r.lastID + 1
	}
	r.lastID = now
	return now
}

func (r *Registry) snapshotLocked() []domain.ContactRecord {
	out := make([]domain.ContactRecord, len(r.contacts), len(r.contacts)+1)
	copy(out, r.contacts)
	return out
}

// persistLocked writes next and swaps it in only when the write succeeds.
func (r *Registry) persistLocked(ctx context.Context, next []domain.ContactRecord) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode contacts: %w", err)
	}
	if err := r.store.Set(ctx, storage.KeyContacts, string(data)); err != nil {
		return fmt.Errorf("save contacts: %w", err)
	}
	r.contacts = next
	return nil
}
