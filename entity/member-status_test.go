package entity

import "testing"

func TestNormalizeStatus(t *testing.T) {
	known := map[string]MemberStatus{
		"member":        StatusMember,
		"restricted":    StatusRestricted,
		"administrator": StatusAdmin,
		"creator":       StatusOwner,
		"left":          StatusLeft,
		"kicked":        StatusKicked,
	}
	for raw, want := range known {
		if got := NormalizeStatus(raw); got != want {
			t.Errorf("NormalizeStatus(%q) = %s, want %s", raw, got, want)
		}
	}
	if got := NormalizeStatus("something_new"); got != StatusOther {
		t.Errorf("unknown status must map to other, got %s", got)
	}
}

func TestStatusClassification(t *testing.T) {
	active := []MemberStatus{StatusMember, StatusRestricted, StatusAdmin, StatusOwner}
	for _, s := range active {
		if !s.IsActive() {
			t.Errorf("%s must be active", s)
		}
		if s.IsGone() {
			t.Errorf("%s must not be gone", s)
		}
	}

	gone := []MemberStatus{StatusLeft, StatusKicked}
	for _, s := range gone {
		if s.IsActive() {
			t.Errorf("%s must not be active", s)
		}
		if !s.IsGone() {
			t.Errorf("%s must be gone", s)
		}
	}

	if StatusOther.IsActive() || StatusOther.IsGone() {
		t.Error("other must be neither active nor gone")
	}

	if !StatusAdmin.CanManage() || !StatusOwner.CanManage() {
		t.Error("admin and owner must manage")
	}
	if StatusMember.CanManage() {
		t.Error("plain member must not manage")
	}
}
