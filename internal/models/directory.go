package models

// Directory rows describe the venue topology this instance serves. They are
// maintained by the platform operators in configuration, not through this
// service: organizations own clubs, clubs own courts, and admin lists carry
// user ids issued by the identity provider.

type Organization struct {
	ID     string   `yaml:"id" json:"id"`
	Name   string   `yaml:"name" json:"name"`
	Admins []string `yaml:"admins" json:"-"`
}

type Club struct {
	ID             string   `yaml:"id" json:"id"`
	OrganizationID string   `yaml:"organization_id" json:"organization_id"`
	Name           string   `yaml:"name" json:"name"`
	Zone           string   `yaml:"zone" json:"zone"` // IANA zone, e.g. Europe/Kyiv
	Currency       string   `yaml:"currency" json:"currency"`
	Admins         []string `yaml:"admins" json:"-"`
	TelegramChatID int64    `yaml:"telegram_chat_id" json:"-"`
}

type Court struct {
	ID           string `yaml:"id" json:"id"`
	ClubID       string `yaml:"club_id" json:"club_id"`
	Name         string `yaml:"name" json:"name"`
	PricePerHour int64  `yaml:"price_per_hour" json:"price_per_hour"` // minor units
}
