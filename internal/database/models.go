package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Platform identifies the messaging surface a user receives pushes on.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformChannel  Platform = "channel"
)

// SearchQuery is one standing search expression registered by a user.
type SearchQuery struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// QueryList is a JSON-encoded list of search queries stored in a single
// column. Mutations are whole-list read-modify-write; last writer wins.
type QueryList []SearchQuery

// Value implements driver.Valuer.
func (q QueryList) Value() (driver.Value, error) {
	if q == nil {
		q = QueryList{}
	}
	data, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query list: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (q *QueryList) Scan(src any) error {
	return scanJSON(src, q, "query list")
}

// StringList is a JSON-encoded list of strings stored in a single column
// (author names, category tags, generated tags).
type StringList []string

// Value implements driver.Valuer.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		s = StringList{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (s *StringList) Scan(src any) error {
	return scanJSON(src, s, "string list")
}

func scanJSON(src, dst any, what string) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		data = []byte("[]")
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported source type %T for %s", src, what)
	}
	if len(data) == 0 {
		data = []byte("[]")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", what, err)
	}
	return nil
}

// UserConfig holds one user's registered queries and push settings.
// It is mutated only through explicit Store operations; the fetch sweep
// never writes it.
type UserConfig struct {
	UserID        int64     `db:"user_id"`
	Platform      Platform  `db:"platform"`
	SearchQueries QueryList `db:"search_queries"`
	ScheduleTime  string    `db:"schedule_time"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Paper is one normalized record from the paper index, plus the three
// independently optional AI enrichment fields. Enrichment fields are
// filled at most once; later sightings reuse the stored values.
type Paper struct {
	ArxivID    string     `db:"arxiv_id"`
	Title      string     `db:"title"`
	Authors    StringList `db:"authors"`
	Summary    string     `db:"summary"`
	Published  time.Time  `db:"published"`
	Updated    time.Time  `db:"updated"`
	Categories StringList `db:"categories"`
	Link       string     `db:"link"`
	PDFLink    string     `db:"pdf_link"`
	Comment    string     `db:"comment"`

	Tags        StringList `db:"tags"`
	Description string     `db:"description"`
	Translation string     `db:"translation"`

	AddedAt time.Time `db:"added_at"`
}

// Delivery records one successful send of a paper to a user. At most one
// row exists per (arxiv_id, user_id) pair.
type Delivery struct {
	ArxivID string    `db:"arxiv_id"`
	UserID  int64     `db:"user_id"`
	SentAt  time.Time `db:"sent_at"`
}
