// Package directory holds the venue topology in id-indexed maps, so club and
// court lookups and admin-membership resolution are pure functions of ids
// with no live object graph between entities.
package directory

import (
	"fmt"
	"time"

	"korty/internal/config"
	"korty/internal/models"
)

type Registry struct {
	orgs   map[string]*models.Organization
	clubs  map[string]*models.Club
	courts map[string]*models.Court

	clubsByOrg   map[string][]string
	courtsByClub map[string][]string

	rootAdmins  map[string]bool
	orgsByUser  map[string][]string
	clubsByUser map[string][]string
}

// New indexes the dataset and verifies every club zone loads under the IANA
// database. The registry is immutable after construction.
func New(cfg *config.DirectoryConfig) (*Registry, error) {
	if err := config.ValidateDirectory(cfg); err != nil {
		return nil, err
	}

	r := &Registry{
		orgs:         make(map[string]*models.Organization, len(cfg.Organizations)),
		clubs:        make(map[string]*models.Club, len(cfg.Clubs)),
		courts:       make(map[string]*models.Court, len(cfg.Courts)),
		clubsByOrg:   make(map[string][]string),
		courtsByClub: make(map[string][]string),
		rootAdmins:   make(map[string]bool, len(cfg.RootAdmins)),
		orgsByUser:   make(map[string][]string),
		clubsByUser:  make(map[string][]string),
	}

	for i := range cfg.Organizations {
		org := &cfg.Organizations[i]
		r.orgs[org.ID] = org
		for _, userID := range org.Admins {
			r.orgsByUser[userID] = append(r.orgsByUser[userID], org.ID)
		}
	}

	for i := range cfg.Clubs {
		club := &cfg.Clubs[i]
		if _, err := time.LoadLocation(club.Zone); err != nil {
			return nil, fmt.Errorf("club %s: zone %q: %w", club.ID, club.Zone, err)
		}
		r.clubs[club.ID] = club
		r.clubsByOrg[club.OrganizationID] = append(r.clubsByOrg[club.OrganizationID], club.ID)
		for _, userID := range club.Admins {
			r.clubsByUser[userID] = append(r.clubsByUser[userID], club.ID)
		}
	}

	for i := range cfg.Courts {
		court := &cfg.Courts[i]
		r.courts[court.ID] = court
		r.courtsByClub[court.ClubID] = append(r.courtsByClub[court.ClubID], court.ID)
	}

	for _, userID := range cfg.RootAdmins {
		r.rootAdmins[userID] = true
	}

	return r, nil
}

func (r *Registry) Organization(id string) (*models.Organization, bool) {
	org, ok := r.orgs[id]
	return org, ok
}

func (r *Registry) Club(id string) (*models.Club, bool) {
	club, ok := r.clubs[id]
	return club, ok
}

func (r *Registry) Court(id string) (*models.Court, bool) {
	court, ok := r.courts[id]
	return court, ok
}

func (r *Registry) ClubsOfOrganization(orgID string) []string {
	return r.clubsByOrg[orgID]
}

func (r *Registry) CourtsOfClub(clubID string) []*models.Court {
	ids := r.courtsByClub[clubID]
	courts := make([]*models.Court, 0, len(ids))
	for _, id := range ids {
		courts = append(courts, r.courts[id])
	}
	return courts
}

func (r *Registry) IsRootAdmin(userID string) bool {
	return r.rootAdmins[userID]
}

// AdminOrganizations returns organizations the user administers directly.
func (r *Registry) AdminOrganizations(userID string) []string {
	return r.orgsByUser[userID]
}

// AdminClubs returns clubs the user administers directly, not counting clubs
// reachable through organization adminship.
func (r *Registry) AdminClubs(userID string) []string {
	return r.clubsByUser[userID]
}
