package models

import "testing"

func TestParsePlan(t *testing.T) {
	cases := []struct {
		in   string
		want Plan
		ok   bool
	}{
		{"TokyoPlan", PlanTokyo, true},
		{"NagoyaPlan", PlanNagoya, true},
		{"  TokyoPlan  ", PlanTokyo, true},
		{"tokyoplan", "", false},
		{"TokyoPlam", "", false},
		{"What's a good restaurant?", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := ParsePlan(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("ParsePlan(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestIsValidPlan(t *testing.T) {
	if !IsValidPlan(PlanTokyo) || !IsValidPlan(PlanNagoya) {
		t.Error("expected fixed plans to be valid")
	}
	if IsValidPlan("KyotoPlan") {
		t.Error("expected unknown plan to be invalid")
	}
}

func TestTravelReplyValidate(t *testing.T) {
	r := TravelReply{Detailed: "Day 1: castle, Day 2: aquarium", Short: "Castle then aquarium."}
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, bad := range []TravelReply{{}, {Detailed: "x"}, {Short: "y"}, {Detailed: "  ", Short: "z"}} {
		if err := bad.Validate(); err != ErrMalformedReply {
			t.Errorf("Validate(%+v) = %v, want ErrMalformedReply", bad, err)
		}
	}
}

func TestReplyHasAudio(t *testing.T) {
	if (Reply{Text: "hi"}).HasAudio() {
		t.Error("text-only reply should not report audio")
	}
	if !(Reply{Text: "hi", AudioName: "voice_u_1.mp3", AudioDuration: 1200}).HasAudio() {
		t.Error("reply with name and duration should report audio")
	}
	if (Reply{Text: "hi", AudioName: "voice_u_1.mp3"}).HasAudio() {
		t.Error("zero duration should not report audio")
	}
}
