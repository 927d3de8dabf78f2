package triage

import (
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestSelectRule_PriorityDescFirstMatch(t *testing.T) {
	rules := []*RoutingRule{
		{Priority: 100, UrgencyFilter: strPtr(UrgencyUrgent), TargetPool: "physician"},
		{Priority: 50, Keywords: []string{"refill", "prescription"}, TargetPool: "pharmacy"},
		{Priority: 10, TargetPool: "clinical"}, // catch-all
	}

	cls := &Classification{Urgency: UrgencyRoutine, Topic: "medication"}
	rule := SelectRule(rules, cls, "I need a Refill on my statin")
	if rule == nil || rule.TargetPool != "pharmacy" {
		t.Fatalf("expected pharmacy rule, got %+v", rule)
	}

	cls = &Classification{Urgency: UrgencyUrgent, Topic: "clinical_question"}
	rule = SelectRule(rules, cls, "chest pain")
	if rule == nil || rule.TargetPool != "physician" {
		t.Fatalf("expected physician rule, got %+v", rule)
	}

	cls = &Classification{Urgency: UrgencyLow, Topic: "billing"}
	rule = SelectRule(rules, cls, "question about my invoice")
	if rule == nil || rule.TargetPool != "clinical" {
		t.Fatalf("expected catch-all rule, got %+v", rule)
	}
}

func TestSelectRule_NoMatch(t *testing.T) {
	rules := []*RoutingRule{
		{Priority: 100, UrgencyFilter: strPtr(UrgencyUrgent), TargetPool: "physician"},
	}
	cls := &Classification{Urgency: UrgencyRoutine}
	if rule := SelectRule(rules, cls, "hello"); rule != nil {
		t.Fatalf("expected no match, got %+v", rule)
	}
}

func TestSelectRule_BothFiltersMustMatch(t *testing.T) {
	rules := []*RoutingRule{
		{Priority: 100, UrgencyFilter: strPtr(UrgencyHigh), Keywords: []string{"rash"}, TargetPool: "derm"},
	}
	cls := &Classification{Urgency: UrgencyHigh}
	if rule := SelectRule(rules, cls, "I have a headache"); rule != nil {
		t.Fatalf("keyword filter should have excluded rule, got %+v", rule)
	}
	if rule := SelectRule(rules, cls, "new rash on my arm"); rule == nil {
		t.Fatal("expected rule to match when both filters match")
	}
}

func TestInQuietHours_Wraparound(t *testing.T) {
	cases := []struct {
		name  string
		clock string
		want  bool
	}{
		{"late evening inside", "23:00", true},
		{"early morning inside", "03:00", true},
		{"boundary start inside", "20:00", true},
		{"boundary end outside", "08:00", false},
		{"midday outside", "12:00", false},
	}
	rule := &RoutingRule{QuietStart: strPtr("20:00"), QuietEnd: strPtr("08:00")}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now, err := time.Parse("15:04", tc.clock)
			if err != nil {
				t.Fatal(err)
			}
			got := InQuietHours(rule, now)
			if got != tc.want {
				t.Errorf("InQuietHours(20:00-08:00, %s) = %v, want %v", tc.clock, got, tc.want)
			}
		})
	}
}

func TestInQuietHours_SameDayWindow(t *testing.T) {
	rule := &RoutingRule{QuietStart: strPtr("12:00"), QuietEnd: strPtr("13:00")}
	noon, _ := time.Parse("15:04", "12:30")
	if !InQuietHours(rule, noon) {
		t.Error("12:30 should be inside 12:00-13:00")
	}
	evening, _ := time.Parse("15:04", "18:00")
	if InQuietHours(rule, evening) {
		t.Error("18:00 should be outside 12:00-13:00")
	}
}

func TestInQuietHours_MalformedClock(t *testing.T) {
	rule := &RoutingRule{QuietStart: strPtr("bogus"), QuietEnd: strPtr("08:00")}
	now, _ := time.Parse("15:04", "23:00")
	if InQuietHours(rule, now) {
		t.Error("malformed quiet window must never defer")
	}
}

func TestInQuietHours_MissingWindow(t *testing.T) {
	now, _ := time.Parse("15:04", "23:00")
	if InQuietHours(&RoutingRule{}, now) {
		t.Error("rule without a window must not defer")
	}
}

func TestShouldDefer_UrgentNeverDefers(t *testing.T) {
	rule := &RoutingRule{
		EnforceQuietHours: true,
		QuietStart:        strPtr("20:00"),
		QuietEnd:          strPtr("08:00"),
	}
	now, _ := time.Parse("15:04", "23:00")

	if ShouldDefer(rule, &Classification{Urgency: UrgencyUrgent}, now) {
		t.Error("urgent messages must bypass quiet hours")
	}
	if !ShouldDefer(rule, &Classification{Urgency: UrgencyRoutine}, now) {
		t.Error("routine message inside quiet hours should defer")
	}
}

func TestShouldDefer_RequiresEnforcement(t *testing.T) {
	now, _ := time.Parse("15:04", "23:00")
	rule := &RoutingRule{
		EnforceQuietHours: false,
		QuietStart:        strPtr("20:00"),
		QuietEnd:          strPtr("08:00"),
	}
	if ShouldDefer(rule, &Classification{Urgency: UrgencyRoutine}, now) {
		t.Error("quiet hours not enforced, must not defer")
	}
	if ShouldDefer(nil, &Classification{Urgency: UrgencyRoutine}, now) {
		t.Error("nil rule must not defer")
	}
}

func TestNextProcessTime(t *testing.T) {
	now := time.Date(2025, 3, 10, 22, 45, 12, 0, time.Local)
	got := NextProcessTime(now, 8)
	want := time.Date(2025, 3, 11, 8, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("NextProcessTime = %v, want %v", got, want)
	}

	// Early morning still rolls to the next calendar day.
	now = time.Date(2025, 3, 10, 2, 0, 0, 0, time.Local)
	got = NextProcessTime(now, 8)
	want = time.Date(2025, 3, 11, 8, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("NextProcessTime = %v, want %v", got, want)
	}
}
