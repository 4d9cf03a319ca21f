package domain

import "time"

// UserProfile is the agricultural profile of a farmer. The core only reads
// it; it contributes context only when ProfileCompleted is true.
type UserProfile struct {
	UserID   UserID `json:"userId"`
	Username string `json:"username,omitempty"`

	Location   string   `json:"location,omitempty"`
	FieldSize  string   `json:"fieldSize,omitempty"` // e.g. "5 acres"
	CropsGrown []string `json:"cropsGrown,omitempty"`
	Climate    string   `json:"climate,omitempty"` // e.g. "Semi-arid"

	ProfileCompleted bool      `json:"profileCompleted"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Complete reports whether the profile may be used as prompt context.
func (p *UserProfile) Complete() bool {
	return p != nil && p.ProfileCompleted
}
