package domain

import (
	"io/fs"
	"strings"
	"time"
)

// Medium is a delivery channel for a notice.
type Medium string

const (
	MediumSite  Medium = "site"
	MediumEmail Medium = "email"
)

// Media lists every medium in the order preference tables display them.
var Media = []Medium{MediumSite, MediumEmail}

func (m Medium) IsValid() bool {
	switch m {
	case MediumSite, MediumEmail:
		return true
	}
	return false
}

// Frequency is a notice type's default delivery policy. It decides the
// value of a preference that the user has never set.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencySiteOnly  Frequency = "site_only"
	FrequencyEmailOnly Frequency = "email_only"
	FrequencyNever     Frequency = "never"
)

func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyImmediate, FrequencySiteOnly, FrequencyEmailOnly, FrequencyNever:
		return true
	}
	return false
}

// Enables reports whether the frequency turns medium m on by default.
// Unknown or empty frequencies fall back to enabled.
func (f Frequency) Enables(m Medium) bool {
	switch f {
	case FrequencyImmediate:
		return true
	case FrequencySiteOnly:
		return m == MediumSite
	case FrequencyEmailOnly:
		return m == MediumEmail
	case FrequencyNever:
		return false
	}
	return true
}

// MaxLabelLength bounds notice type labels.
const MaxLabelLength = 40

// ValidateLabel checks that a notice type label is usable as a key and as a
// single template directory name.
func ValidateLabel(label string) error {
	if label == "" || len(label) > MaxLabelLength {
		return ErrInvalidLabel
	}
	if label == "." || strings.Contains(label, "/") || !fs.ValidPath(label) {
		return ErrInvalidLabel
	}
	return nil
}

// NoticeType is a registered category of notification.
type NoticeType struct {
	Label            string    `json:"label" yaml:"label"`
	Display          string    `json:"display" yaml:"display"`
	Description      string    `json:"description" yaml:"description"`
	DefaultFrequency Frequency `json:"default_frequency" yaml:"default_frequency"`
	CreatedAt        time.Time `json:"created_at" yaml:"-"`
}

// NoticeSetting is one user's choice for a (notice type, medium) pair.
type NoticeSetting struct {
	UserID    UserID    `json:"user_id"`
	Label     string    `json:"label"`
	Medium    Medium    `json:"medium"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SettingsRow is the resolved preference of every medium for one notice type.
type SettingsRow struct {
	NoticeType *NoticeType     `json:"notice_type"`
	Media      map[Medium]bool `json:"media"`
}

// Notice is the on-site record shown in a user's feed.
type Notice struct {
	ID        string    `json:"id"`
	Recipient UserID    `json:"recipient"`
	Label     string    `json:"label"`
	ShortText string    `json:"short_text"`
	Message   string    `json:"message"`
	Sender    *UserID   `json:"sender,omitempty"`
	SentAt    time.Time `json:"sent_at"`
	Unseen    bool      `json:"unseen"`
	Archived  bool      `json:"archived"`
}
