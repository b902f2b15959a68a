// Package entity defines domain types shared across the application.
package entity

// MemberStatus is the closed set of membership states a user can hold in a
// chat. Raw platform status strings are normalized into this enum at the
// boundary; unknown values map to StatusOther.
type MemberStatus string

const (
	StatusMember     MemberStatus = "member"
	StatusRestricted MemberStatus = "restricted"
	StatusAdmin      MemberStatus = "administrator"
	StatusOwner      MemberStatus = "creator"
	StatusLeft       MemberStatus = "left"
	StatusKicked     MemberStatus = "kicked"
	StatusOther      MemberStatus = "other"
)

func NormalizeStatus(raw string) MemberStatus {
	switch raw {
	case "member":
		return StatusMember
	case "restricted":
		return StatusRestricted
	case "administrator":
		return StatusAdmin
	case "creator":
		return StatusOwner
	case "left":
		return StatusLeft
	case "kicked":
		return StatusKicked
	}
	return StatusOther
}

// IsActive reports whether the status counts as belonging to the chat.
// Restricted members are still members.
func (s MemberStatus) IsActive() bool {
	switch s {
	case StatusMember, StatusRestricted, StatusAdmin, StatusOwner:
		return true
	}
	return false
}

// IsGone reports whether the status counts as having departed the chat.
func (s MemberStatus) IsGone() bool {
	return s == StatusLeft || s == StatusKicked
}

// CanManage reports whether the status grants chat administration rights.
func (s MemberStatus) CanManage() bool {
	return s == StatusAdmin || s == StatusOwner
}
