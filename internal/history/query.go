package history

import (
	"fmt"
	"strings"
	"time"
)

// MaxLimit is the largest page a query returns.
const MaxLimit = 500

// QueryOptions filters and paginates history queries. Results are always
// ordered newest first, ties broken by descending event ID.
type QueryOptions struct {
	Since      *time.Time
	Until      *time.Time
	EventTypes []string
	Primary    string
	Limit      int
	Cursor     string // "<RFC3339Nano>|<event_id>" as returned by the previous page
}

// DefaultQueryOptions returns sensible defaults.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{Limit: 50}
}

func (o QueryOptions) limit() int {
	switch {
	case o.Limit <= 0:
		return 100
	case o.Limit > MaxLimit:
		return MaxLimit
	}
	return o.Limit
}

// pageCursor is the position of the last entry of a page.
type pageCursor struct {
	at      time.Time
	eventID string
}

// after reports whether e sorts after the cursor, i.e. belongs to a later page.
func (c *pageCursor) after(e Entry) bool {
	if c == nil {
		return true
	}
	if e.OccurredAt.Equal(c.at) {
		return e.EventID < c.eventID
	}
	return e.OccurredAt.Before(c.at)
}

func (o QueryOptions) cursor() (*pageCursor, error) {
	if o.Cursor == "" {
		return nil, nil
	}
	ts, id, ok := strings.Cut(o.Cursor, "|")
	if !ok || id == "" {
		return nil, fmt.Errorf("invalid cursor %q: missing event id", o.Cursor)
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor %q: %w", o.Cursor, err)
	}
	return &pageCursor{at: t, eventID: id}, nil
}

func cursorOf(e Entry) string {
	return e.OccurredAt.UTC().Format(time.RFC3339Nano) + "|" + e.EventID
}
