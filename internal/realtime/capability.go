// Package realtime authenticates stream connections and fans events out to
// room subscribers. A connection's capability is computed server-side from
// the directory; nothing about scope is ever taken from the client.
package realtime

import (
	"korty/internal/directory"
	"korty/internal/events"
	"korty/internal/models"
)

// Role is the admin tier a user holds. Higher tiers subsume lower ones.
type Role int

const (
	RoleMember Role = iota
	RoleClubAdmin
	RoleOrganizationAdmin
	RoleRootAdmin
)

func (r Role) String() string {
	switch r {
	case RoleRootAdmin:
		return "root_admin"
	case RoleOrganizationAdmin:
		return "organization_admin"
	case RoleClubAdmin:
		return "club_admin"
	default:
		return "member"
	}
}

// Capability is the per-connection authorization snapshot. ClubIDs is the
// full derived set: clubs administered directly plus every club of each
// administered organization. It is never persisted and never trusted from
// the wire.
type Capability struct {
	UserID          string
	Role            Role
	OrganizationIDs []string
	ClubIDs         []string

	clubSet map[string]struct{}
}

// ResolveCapability derives the capability for a user id from durable
// directory data. Unknown ids resolve to plain members; adminship can only
// widen, never narrow, based on what the directory says right now.
func ResolveCapability(dir *directory.Registry, userID string) *Capability {
	cap := &Capability{UserID: userID, Role: RoleMember}

	if dir.IsRootAdmin(userID) {
		cap.Role = RoleRootAdmin
		return cap
	}

	orgs := dir.AdminOrganizations(userID)
	clubs := dir.AdminClubs(userID)

	cap.clubSet = make(map[string]struct{})
	for _, clubID := range clubs {
		cap.clubSet[clubID] = struct{}{}
	}
	for _, orgID := range orgs {
		cap.OrganizationIDs = append(cap.OrganizationIDs, orgID)
		for _, clubID := range dir.ClubsOfOrganization(orgID) {
			cap.clubSet[clubID] = struct{}{}
		}
	}
	for clubID := range cap.clubSet {
		cap.ClubIDs = append(cap.ClubIDs, clubID)
	}

	switch {
	case len(orgs) > 0:
		cap.Role = RoleOrganizationAdmin
	case len(clubs) > 0:
		cap.Role = RoleClubAdmin
	}
	return cap
}

// Rooms lists the rooms this capability may join: the personal room always,
// club rooms per administered club, the platform room for root admins only.
func (c *Capability) Rooms() []string {
	rooms := []string{events.RoomUser(c.UserID)}
	if c.Role == RoleRootAdmin {
		return append(rooms, events.RoomRootAdmin)
	}
	for _, clubID := range c.ClubIDs {
		rooms = append(rooms, events.RoomClub(clubID))
	}
	return rooms
}

// ManagesClub reports whether the capability covers the club, directly or
// through an organization.
func (c *Capability) ManagesClub(clubID string) bool {
	if c.Role == RoleRootAdmin {
		return true
	}
	_, ok := c.clubSet[clubID]
	return ok
}

// CanViewBooking allows the booking's owner and any admin whose scope covers
// the booking's club.
func (c *Capability) CanViewBooking(b *models.Booking) bool {
	if b.UserID == c.UserID {
		return true
	}
	return c.ManagesClub(b.ClubID)
}
