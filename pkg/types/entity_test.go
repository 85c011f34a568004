package types

import (
	"strings"
	"testing"
)

func TestNewEntityID(t *testing.T) {
	cases := []struct {
		name       string
		entityType string
		sourceID   string
		want       string
	}{
		{"email message id", EntityTypeEmail, "CAF=abc123@mail.example.com", "email_caf_abc123_at_mail_example_com"},
		{"contact email", EntityTypeContact, "Alice@X.com", "contact_alice_at_x_com"},
		{"meeting event id", EntityTypeMeeting, "evt-2026-08", "meeting_evt_2026_08"},
		{"already clean", EntityTypeFollowUp, "abc123", "followup_abc123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NewEntityID(tc.entityType, tc.sourceID)
			if got != tc.want {
				t.Errorf("NewEntityID(%q, %q) = %q, want %q", tc.entityType, tc.sourceID, got, tc.want)
			}
		})
	}
}

func TestGeneratedEntityID(t *testing.T) {
	a := GeneratedEntityID(EntityTypeMemory)
	b := GeneratedEntityID(EntityTypeMemory)

	if a == b {
		t.Errorf("Expected distinct generated IDs, got %q twice", a)
	}
	if !strings.HasPrefix(a, "memory_") {
		t.Errorf("Expected memory_ prefix, got %q", a)
	}
	if TypeFromID(a) != EntityTypeMemory {
		t.Errorf("Expected type %q from ID %q, got %q", EntityTypeMemory, a, TypeFromID(a))
	}
}

func TestTypeFromID(t *testing.T) {
	cases := []struct {
		id   string
		want string
	}{
		{"email_abc", "email"},
		{"contact_alice_at_x_com", "contact"},
		{"noprefix", ""},
		{"_leading", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := TypeFromID(tc.id); got != tc.want {
			t.Errorf("TypeFromID(%q) = %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestNormalizeSourceID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"alice@x.com", "alice_at_x_com"},
		{"Hello World!", "hello_world"},
		{"a--b__c", "a_b_c"},
		{"__trimmed__", "trimmed"},
	}
	for _, tc := range cases {
		if got := NormalizeSourceID(tc.in); got != tc.want {
			t.Errorf("NormalizeSourceID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEntityMetadataHelpers(t *testing.T) {
	e := &Entity{ID: "fact_1", EntityType: EntityTypeFact}

	e.SetMetadata(MetaIsCurrent, true)
	if e.Metadata[MetaIsCurrent] != true {
		t.Errorf("Expected is_current metadata to be set")
	}

	if e.IsDeleted() {
		t.Error("Expected entity without tombstone to not be deleted")
	}
	e.SetMetadata(MetaDeletedAt, "2026-08-30T00:00:00Z")
	if !e.IsDeleted() {
		t.Error("Expected entity with deleted_at metadata to be deleted")
	}
}

func TestContextBundleAddDeduplicates(t *testing.T) {
	b := &ContextBundle{}

	e := &Entity{ID: "email_1", EntityType: EntityTypeEmail}
	if !b.Add(e) {
		t.Fatal("Expected first Add to succeed")
	}
	if b.Add(e) {
		t.Error("Expected duplicate Add to be rejected")
	}
	if b.Add(nil) {
		t.Error("Expected nil Add to be rejected")
	}

	b.Add(&Entity{ID: "contact_1", EntityType: EntityTypeContact})
	if b.Total() != 2 {
		t.Errorf("Expected 2 entities total, got %d", b.Total())
	}
	if len(b.Entities[EntityTypeEmail]) != 1 {
		t.Errorf("Expected 1 email in bucket, got %d", len(b.Entities[EntityTypeEmail]))
	}
}

func TestRelationshipReverse(t *testing.T) {
	r := Relationship{
		FromID:   "email_1",
		FromType: EntityTypeEmail,
		ToID:     "contact_1",
		ToType:   EntityTypeContact,
		Type:     RelReceivedFrom,
	}
	rev := r.Reverse()
	if rev.FromID != "contact_1" || rev.ToID != "email_1" {
		t.Errorf("Expected reversed endpoints, got from=%q to=%q", rev.FromID, rev.ToID)
	}
	if rev.FromType != EntityTypeContact || rev.ToType != EntityTypeEmail {
		t.Errorf("Expected reversed endpoint types, got from=%q to=%q", rev.FromType, rev.ToType)
	}
}
