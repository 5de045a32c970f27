// Package feed maintains the server's in-memory view of the expense list:
// a newest-first cache filled one page at a time, plus an event fan-out for
// connected clients. There is one feed per process; every subscriber shares
// the same cache and the same upstream queries.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ricevute/internal/core"
)

var ErrClosed = errors.New("feed is closed")

type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event is one observed change to the expense list.
type Event struct {
	Type      EventType    `json:"type"`
	ExpenseID string       `json:"expenseId"`
	Expense   core.Expense `json:"expense,omitempty"`
}

// Lister is the subset of the repository the feed reads from.
type Lister interface {
	ListExpenses(ctx context.Context, limit int) ([]core.Expense, error)
	ListExpensesBefore(ctx context.Context, createdBefore time.Time, beforeID string, limit int) ([]core.Expense, error)
}

type Feed struct {
	store    Lister
	pageSize int

	mu       sync.Mutex
	items    []core.Expense // newest first
	hasMore  bool
	fetching bool
	closed   bool
	subs     map[chan Event]struct{}
}

func New(store Lister, pageSize int) *Feed {
	return &Feed{
		store:    store,
		pageSize: pageSize,
		hasMore:  true,
		subs:     map[chan Event]struct{}{},
	}
}

// Start loads the first page. Safe to call again after Close; it reopens the
// feed with a fresh cache.
func (f *Feed) Start(ctx context.Context) error {
	page, err := f.store.ListExpenses(ctx, f.pageSize)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = false
	f.items = page
	f.hasMore = len(page) == f.pageSize
	if f.subs == nil {
		f.subs = map[chan Event]struct{}{}
	}
	return nil
}

// Items returns a copy of the cached list, newest first.
func (f *Feed) Items() []core.Expense {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.Expense, len(f.items))
	copy(out, f.items)
	return out
}

func (f *Feed) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasMore
}

// FetchMore loads the next page past the current cache and returns how many
// records were added. It is a no-op when a fetch is already in flight, when
// the store is exhausted, or when the cache is empty (no boundary to page
// from).
func (f *Feed) FetchMore(ctx context.Context) (int, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, ErrClosed
	}
	if f.fetching || !f.hasMore || len(f.items) == 0 {
		f.mu.Unlock()
		return 0, nil
	}
	f.fetching = true
	oldest := f.items[len(f.items)-1]
	f.mu.Unlock()

	page, err := f.store.ListExpensesBefore(ctx, oldest.CreatedAt, oldest.ID, f.pageSize)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetching = false
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(f.items))
	for _, e := range f.items {
		seen[e.ID] = struct{}{}
	}
	added := 0
	for _, e := range page {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		f.items = append(f.items, e)
		added++
	}
	f.hasMore = len(page) == f.pageSize
	return added, nil
}

// Refresh re-reads the newest page and splices it over the head of the
// cache. Records older than the refreshed page are kept, so a long-scrolled
// client does not lose its tail.
func (f *Feed) Refresh(ctx context.Context) error {
	page, err := f.store.ListExpenses(ctx, f.pageSize)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if len(page) == 0 {
		f.items = nil
		f.hasMore = false
		return nil
	}

	fresh := make(map[string]struct{}, len(page))
	for _, e := range page {
		fresh[e.ID] = struct{}{}
	}
	oldest := page[len(page)-1]
	merged := page
	for _, e := range f.items {
		if _, dup := fresh[e.ID]; dup {
			continue
		}
		if e.CreatedAt.Before(oldest.CreatedAt) {
			merged = append(merged, e)
		}
	}
	f.items = merged
	if len(page) < f.pageSize {
		f.hasMore = false
	}
	return nil
}

// Apply folds a locally observed change into the cache and fans it out to
// subscribers. Used for changes made through this process; changes made by
// other processes arrive via Refresh.
func (f *Feed) Apply(ev Event) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}

	switch ev.Type {
	case EventCreated:
		if f.indexOf(ev.Expense.ID) < 0 {
			f.items = append([]core.Expense{ev.Expense}, f.items...)
		}
	case EventUpdated:
		if i := f.indexOf(ev.Expense.ID); i >= 0 {
			f.items[i] = ev.Expense
		}
	case EventDeleted:
		if i := f.indexOf(ev.ExpenseID); i >= 0 {
			f.items = append(f.items[:i], f.items[i+1:]...)
		}
	}
	f.mu.Unlock()

	f.broadcast(ev)
}

func (f *Feed) indexOf(id string) int {
	for i, e := range f.items {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Subscribe registers a listener for feed events. The returned cancel
// function must be called when the listener goes away.
func (f *Feed) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// SubscriberCount reports the number of connected listeners.
func (f *Feed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Feed) broadcast(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
			// slow consumer, drop rather than stall the feed
			slog.Warn("Feed subscriber lagging, event dropped",
				"event_type", string(ev.Type), "expense_id", ev.ExpenseID)
		}
	}
}

// Close drops the cache and disconnects all subscribers. Called on logout
// and on shutdown; a later Start reopens the feed.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.items = nil
	f.hasMore = false
	for ch := range f.subs {
		delete(f.subs, ch)
		close(ch)
	}
}
