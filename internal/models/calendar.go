// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// CalendarFilterType enumerates the filters a calendar query may carry.
type CalendarFilterType string

const (
	// FilterNotDeleted excludes deleted entries.
	FilterNotDeleted CalendarFilterType = "not_deleted"
	// FilterThreads restricts entries to the listed threads.
	FilterThreads CalendarFilterType = "threads"
)

// CalendarFilter is one filter of a calendar query.
type CalendarFilter struct {
	Type      CalendarFilterType `json:"type" validate:"required,oneof=not_deleted threads"`
	ThreadIDs []string           `json:"threadIDs,omitempty" validate:"required_if=Type threads"`
}

// CalendarQuery is the subscription filter for calendar entries.
type CalendarQuery struct {
	StartDate string           `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string           `json:"endDate" validate:"required,datetime=2006-01-02"`
	Filters   []CalendarFilter `json:"filters" validate:"dive"`
}

// EntryInfo is a calendar entry.
type EntryInfo struct {
	ID           string `json:"id"`
	ThreadID     string `json:"threadID"`
	Text         string `json:"text"`
	Year         int    `json:"year"`
	Month        int    `json:"month"`
	Day          int    `json:"day"`
	CreationTime int64  `json:"creationTime"`
	CreatorID    string `json:"creatorID"`
	Deleted      bool   `json:"deleted"`
}

// Date returns the entry's date in DateLayout.
func (e *EntryInfo) Date() string {
	return fmt.Sprintf("%04d-%02d-%02d", e.Year, e.Month, e.Day)
}

// ThreadIDs returns the thread IDs named by the query's thread filter, or nil
// when the query is not restricted to specific threads.
func (q *CalendarQuery) ThreadIDs() map[string]bool {
	for _, f := range q.Filters {
		if f.Type != FilterThreads {
			continue
		}
		ids := make(map[string]bool, len(f.ThreadIDs))
		for _, id := range f.ThreadIDs {
			ids[id] = true
		}
		return ids
	}
	return nil
}

func (q *CalendarQuery) excludesDeleted() bool {
	for _, f := range q.Filters {
		if f.Type == FilterNotDeleted {
			return true
		}
	}
	return false
}

// Matches reports whether the entry falls inside the query.
func (q *CalendarQuery) Matches(e *EntryInfo) bool {
	date := e.Date()
	if date < q.StartDate || date > q.EndDate {
		return false
	}
	if e.Deleted && q.excludesDeleted() {
		return false
	}
	if threads := q.ThreadIDs(); threads != nil && !threads[e.ThreadID] {
		return false
	}
	return true
}

// Covers reports whether the entry falls inside the query's date range and
// thread filter. Unlike Matches it ignores deletion, so clients still learn
// about entries deleted inside their window.
func (q *CalendarQuery) Covers(e *EntryInfo) bool {
	date := e.Date()
	if date < q.StartDate || date > q.EndDate {
		return false
	}
	if threads := q.ThreadIDs(); threads != nil && !threads[e.ThreadID] {
		return false
	}
	return true
}

// FilterEntries returns the entries matched by any of the queries.
func FilterEntries(entries []EntryInfo, queries ...CalendarQuery) []EntryInfo {
	out := make([]EntryInfo, 0, len(entries))
	for i := range entries {
		for j := range queries {
			if queries[j].Matches(&entries[i]) {
				out = append(out, entries[i])
				break
			}
		}
	}
	return out
}

// filterKey is an order-insensitive fingerprint of a filter set.
func (q *CalendarQuery) filterKey() string {
	parts := make([]string, 0, len(q.Filters))
	for _, f := range q.Filters {
		ids := append([]string(nil), f.ThreadIDs...)
		sort.Strings(ids)
		parts = append(parts, string(f.Type)+":"+strings.Join(ids, ","))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// SameFilters reports whether two queries carry equivalent filters.
func (q *CalendarQuery) SameFilters(other *CalendarQuery) bool {
	return q.filterKey() == other.filterKey()
}

// Equal reports whether two queries select the same entries.
func (q *CalendarQuery) Equal(other *CalendarQuery) bool {
	return q.StartDate == other.StartDate && q.EndDate == other.EndDate && q.SameFilters(other)
}

// CompareCalendarQueries returns the queries covering what next selects that
// prev did not. When the filters differ the whole of next is returned; when only
// the date range moved, just the newly covered ranges are returned.
func CompareCalendarQueries(prev, next CalendarQuery) ([]CalendarQuery, error) {
	if !prev.SameFilters(&next) {
		return []CalendarQuery{next}, nil
	}

	ps, err := time.Parse(DateLayout, prev.StartDate)
	if err != nil {
		return nil, fmt.Errorf("parse start date %q: %w", prev.StartDate, err)
	}
	pe, err := time.Parse(DateLayout, prev.EndDate)
	if err != nil {
		return nil, fmt.Errorf("parse end date %q: %w", prev.EndDate, err)
	}
	ns, err := time.Parse(DateLayout, next.StartDate)
	if err != nil {
		return nil, fmt.Errorf("parse start date %q: %w", next.StartDate, err)
	}
	ne, err := time.Parse(DateLayout, next.EndDate)
	if err != nil {
		return nil, fmt.Errorf("parse end date %q: %w", next.EndDate, err)
	}

	if ne.Before(ps) || ns.After(pe) {
		return []CalendarQuery{next}, nil
	}

	var difference []CalendarQuery
	if ns.Before(ps) {
		difference = append(difference, CalendarQuery{
			StartDate: next.StartDate,
			EndDate:   ps.AddDate(0, 0, -1).Format(DateLayout),
			Filters:   next.Filters,
		})
	}
	if ne.After(pe) {
		difference = append(difference, CalendarQuery{
			StartDate: pe.AddDate(0, 0, 1).Format(DateLayout),
			EndDate:   next.EndDate,
			Filters:   next.Filters,
		})
	}
	return difference, nil
}
