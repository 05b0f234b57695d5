package segment

import "testing"

func TestExtractEventTriggersEquality(t *testing.T) {
	got := TriggerNames("SELECT user_id AS id FROM events WHERE events.name = 'purchase'")
	assertNames(t, got, "purchase")
}

func TestExtractEventTriggersReversedEquality(t *testing.T) {
	got := TriggerNames(`SELECT user_id AS id FROM events WHERE 'signup' = events.name`)
	assertNames(t, got, "signup")
}

func TestExtractEventTriggersInList(t *testing.T) {
	got := TriggerNames(`SELECT user_id AS id FROM events WHERE events.name IN ('a', 'b', 'c')`)
	assertNames(t, got, "a", "b", "c")
}

func TestExtractEventTriggersBackticks(t *testing.T) {
	got := TriggerNames("SELECT user_id AS id FROM `events` WHERE `events`.`name` = 'checkout'")
	assertNames(t, got, "checkout")
}

func TestExtractEventTriggersUnrelatedSQL(t *testing.T) {
	got := TriggerNames("SELECT id FROM users WHERE JSON_EXTRACT(attributes,'$.active')=true")
	if len(got) != 0 {
		t.Fatalf("expected no triggers, got %v", got)
	}
}

func assertNames(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
