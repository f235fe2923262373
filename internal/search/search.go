// Package search implements keyword matching over users and events.
package search

import (
	"strings"

	"github.com/dukerupert/timenest/internal/model"
)

// Users returns the users whose username, email, first or last name
// contains query, ignoring case. An empty query matches nothing.
func Users(users []model.User, query string) []model.User {
	q := normalize(query)
	out := []model.User{}
	if q == "" {
		return out
	}
	for _, u := range users {
		if containsAny(q, u.Username, u.Email, u.FirstName, u.LastName, u.FirstName+" "+u.LastName) {
			out = append(out, u)
		}
	}
	return out
}

// Events returns the events whose title, description or location contains
// query, ignoring case. Title matches come first; within each group the
// input order is kept. An empty query matches nothing.
func Events(events []model.Event, query string) []model.Event {
	q := normalize(query)
	titles := []model.Event{}
	if q == "" {
		return titles
	}
	var others []model.Event
	for _, e := range events {
		switch {
		case containsAny(q, e.Title):
			titles = append(titles, e)
		case containsAny(q, e.Description, e.Location):
			others = append(others, e)
		}
	}
	return append(titles, others...)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsAny(q string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
