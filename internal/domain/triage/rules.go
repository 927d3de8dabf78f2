package triage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SelectRule returns the first rule (by descending priority) whose condition
// set matches the classification and content, or nil when nothing matches.
// A rule with no conditions always matches, so clinics place catch-alls last.
// Pure function: the rule list is expected pre-sorted priority desc.
func SelectRule(rules []*RoutingRule, cls *Classification, content string) *RoutingRule {
	for _, rule := range rules {
		if ruleMatches(rule, cls, content) {
			return rule
		}
	}
	return nil
}

func ruleMatches(rule *RoutingRule, cls *Classification, content string) bool {
	if rule.UrgencyFilter != nil && *rule.UrgencyFilter != cls.Urgency {
		return false
	}
	if len(rule.Keywords) > 0 && !containsAnyKeyword(content, rule.Keywords) {
		return false
	}
	return true
}

func containsAnyKeyword(content string, keywords []string) bool {
	lower := strings.ToLower(content)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// ShouldDefer reports whether the message must be held for batch processing.
// Urgent classifications are never deferred regardless of quiet hours.
func ShouldDefer(rule *RoutingRule, cls *Classification, now time.Time) bool {
	if cls.Urgency == UrgencyUrgent {
		return false
	}
	if rule == nil || !rule.EnforceQuietHours {
		return false
	}
	return InQuietHours(rule, now)
}

// InQuietHours reports whether now falls inside the rule's quiet window.
// When start > end the window wraps midnight (e.g. 20:00-08:00) and the check
// becomes now >= start OR now < end.
func InQuietHours(rule *RoutingRule, now time.Time) bool {
	if rule.QuietStart == nil || rule.QuietEnd == nil {
		return false
	}
	start, err := parseClock(*rule.QuietStart)
	if err != nil {
		return false
	}
	end, err := parseClock(*rule.QuietEnd)
	if err != nil {
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	if start > end {
		return minute >= start || minute < end
	}
	return minute >= start && minute < end
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// NextProcessTime computes when a deferred batch should be processed: the
// next calendar day at releaseHour local time. Weekends and holidays are not
// special-cased.
func NextProcessTime(now time.Time, releaseHour int) time.Time {
	next := now.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), releaseHour, 0, 0, 0, now.Location())
}
