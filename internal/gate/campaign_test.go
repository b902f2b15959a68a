package gate

import (
	"testing"
	"time"

	"membergate/entity"
)

func TestExtractInviteCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://t.me/+AbCd_123", "AbCd_123"},
		{"https://t.me/joinchat/AbCd_123", "AbCd_123"},
		{"t.me/+AbCd_123", "AbCd_123"},
		{"https://telegram.me/joinchat/xyz", "xyz"},
		{"https://t.me/publicname", "publicname"},
		{"https://t.me/joinchat/", ""},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := ExtractInviteCode(tc.in); got != tc.want {
			t.Errorf("ExtractInviteCode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func registerCampaign(store *fakeStore, chatId int64, link, label string) {
	store.campaigns = append(store.campaigns, &entity.CampaignLink{
		ChatId:     chatId,
		InviteLink: link,
		Label:      label,
	})
}

func TestAttributeExactMatch(t *testing.T) {
	store := newFakeStore()
	registerCampaign(store, 10, "https://t.me/+spring", "spring-promo")
	a := NewAttributor(testLogger(), store)

	label := a.Attribute(10, 20, "https://t.me/+spring", time.Now())
	if label != "spring-promo" {
		t.Fatalf("label = %q, want spring-promo", label)
	}
	if len(store.joins) != 1 || store.joins[0].Label != "spring-promo" {
		t.Fatalf("one attribution fact expected, got %+v", store.joins)
	}
}

func TestAttributeCodeFallback(t *testing.T) {
	store := newFakeStore()
	registerCampaign(store, 10, "https://t.me/joinchat/spring", "spring-promo")
	a := NewAttributor(testLogger(), store)

	// same code, different host and prefix form
	label := a.Attribute(10, 20, "https://telegram.me/+spring", time.Now())
	if label != "spring-promo" {
		t.Fatalf("label = %q, want spring-promo via code fallback", label)
	}
}

func TestAttributeUnknownInvite(t *testing.T) {
	store := newFakeStore()
	registerCampaign(store, 10, "https://t.me/+spring", "spring-promo")
	a := NewAttributor(testLogger(), store)

	if label := a.Attribute(10, 20, "https://t.me/+autumn", time.Now()); label != "" {
		t.Fatalf("unknown invite must stay unattributed, got %q", label)
	}
	if len(store.joins) != 0 {
		t.Error("no attribution fact must be written")
	}
}

func TestAttributeScopedToChat(t *testing.T) {
	store := newFakeStore()
	registerCampaign(store, 11, "https://t.me/+spring", "other-chat")
	a := NewAttributor(testLogger(), store)

	if label := a.Attribute(10, 20, "https://t.me/+spring", time.Now()); label != "" {
		t.Fatalf("campaigns of another chat must not match, got %q", label)
	}
}
