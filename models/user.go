package models

import "time"

// User is one row of the user table, keyed by the stringified Telegram id.
type User struct {
	Credits      int64     `json:"credits" bson:"credits"`
	ReferredBy   *int64    `json:"referred_by" bson:"referred_by"`
	Referrals    []int64   `json:"referrals" bson:"referrals"`
	TotalChecks  int64     `json:"total_checks" bson:"total_checks"`
	JoinedDate   time.Time `json:"joined_date" bson:"joined_date"`
	ClaimedCodes []string  `json:"claimed_codes" bson:"claimed_codes"`
	IsOwner      bool      `json:"is_owner" bson:"is_owner"`
}

// HasClaimed reports whether code is in the user's claimed list.
func (u User) HasClaimed(code string) bool {
	for _, c := range u.ClaimedCodes {
		if c == code {
			return true
		}
	}
	return false
}
