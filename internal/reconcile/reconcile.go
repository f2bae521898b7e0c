// Package reconcile matches scraped bridge names to the canonical bridge list and
// classifies free-form status text for display.
package reconcile

import (
	"strings"

	"github.com/saqib-21/WellandCanalStatus/internal/models"
	"github.com/saqib-21/WellandCanalStatus/internal/parser"
)

// StatusClass is the display category of a status string.
type StatusClass string

const (
	ClassOpen        StatusClass = "open"
	ClassRaisingSoon StatusClass = "raising_soon"
	ClassLowering    StatusClass = "lowering"
	ClassUnavailable StatusClass = "unavailable"
	ClassUnknown     StatusClass = "unknown"
)

// Marker is a canonical bridge with its current status.
type Marker struct {
	CanonicalBridge
	Status string      `json:"status"`
	Class  StatusClass `json:"class"`
}

// Classify maps status text to a class, case-insensitively, first match wins:
// open, raising soon, lowering, unavailable, unknown.
func Classify(status string) StatusClass {
	s := strings.ToLower(status)
	switch {
	case strings.Contains(s, "available") && !strings.Contains(s, "unavailable"):
		return ClassOpen
	case strings.Contains(s, "raising soon"):
		return ClassRaisingSoon
	case strings.Contains(s, "lowering"):
		return ClassLowering
	case strings.Contains(s, "unavailable"), strings.Contains(s, "raised"), strings.Contains(s, "closed"):
		return ClassUnavailable
	default:
		return ClassUnknown
	}
}

// Match returns the first feed entry whose name contains the canonical name or is
// contained by it, ignoring case.
func Match(feed []models.BridgeStatus, canonicalName string) (models.BridgeStatus, bool) {
	want := strings.ToLower(canonicalName)
	for _, b := range feed {
		got := strings.ToLower(b.Name)
		if got == "" {
			continue
		}
		if strings.Contains(got, want) || strings.Contains(want, got) {
			return b, true
		}
	}
	return models.BridgeStatus{}, false
}

// Reconcile produces one marker per canonical bridge, in canonical order.
// Bridges without a match, or matched with an empty status, are Unknown.
func Reconcile(feed []models.BridgeStatus, canon []CanonicalBridge) []Marker {
	markers := make([]Marker, 0, len(canon))
	for _, c := range canon {
		status := parser.UnknownStatus
		if b, ok := Match(feed, c.Name); ok && strings.TrimSpace(b.Status) != "" {
			status = b.Status
		}
		markers = append(markers, Marker{CanonicalBridge: c, Status: status, Class: Classify(status)})
	}
	return markers
}
