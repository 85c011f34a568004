package indexer

import "testing"

func TestParseParticipant(t *testing.T) {
	cases := []struct {
		in        string
		wantName  string
		wantEmail string
	}{
		{"Alice Smith <alice@x.com>", "Alice Smith", "alice@x.com"},
		{"<bob@x.com>", "", "bob@x.com"},
		{"carol@x.com", "", "carol@x.com"},
		{"Dave Jones", "Dave Jones", ""},
		{"Eve <not-an-address>", "Eve", ""},
		{"  padded@x.com ", "", "padded@x.com"},
	}
	for _, tc := range cases {
		name, email := parseParticipant(tc.in)
		if name != tc.wantName || email != tc.wantEmail {
			t.Errorf("parseParticipant(%q) = (%q, %q), want (%q, %q)",
				tc.in, name, email, tc.wantName, tc.wantEmail)
		}
	}
}

func TestSplitPayload(t *testing.T) {
	structured, analyzed := splitPayload(Payload{
		"message_id": "msg-1",
		"subject":    "Hello",
		"summary":    "A greeting",
		"sentiment":  "positive",
		"source":     "gmail",
	}, emailAnalyzedKeys)

	if _, ok := structured["message_id"]; !ok {
		t.Error("Expected message_id in structured partition")
	}
	if _, ok := analyzed["summary"]; !ok {
		t.Error("Expected summary in analyzed partition")
	}
	if _, ok := analyzed["sentiment"]; !ok {
		t.Error("Expected sentiment in analyzed partition")
	}
	if _, ok := structured["source"]; ok {
		t.Error("Expected reserved source key to be excluded")
	}
	if _, ok := structured["summary"]; ok {
		t.Error("Expected summary to not leak into structured")
	}
}

func TestParticipantList(t *testing.T) {
	p := Payload{
		"a": []string{"x", "y"},
		"b": []interface{}{"x", 42, "y"},
		"c": "not a list",
	}
	if got := participantList(p, "a"); len(got) != 2 {
		t.Errorf("Expected 2 participants from []string, got %v", got)
	}
	if got := participantList(p, "b"); len(got) != 2 {
		t.Errorf("Expected non-strings skipped, got %v", got)
	}
	if got := participantList(p, "c"); got != nil {
		t.Errorf("Expected nil for non-list value, got %v", got)
	}
	if got := participantList(p, "missing"); got != nil {
		t.Errorf("Expected nil for missing key, got %v", got)
	}
}
