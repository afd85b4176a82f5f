package models

import "time"

// RedeemCode is a single-use credit voucher, keyed by its code string.
type RedeemCode struct {
	Value     int64      `json:"value" bson:"value"`
	CreatedBy string     `json:"created_by" bson:"created_by"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	ClaimedBy *string    `json:"claimed_by" bson:"claimed_by"`
	ClaimedAt *time.Time `json:"claimed_at" bson:"claimed_at"`
}

// IsClaimed reports whether the code has been consumed.
func (c RedeemCode) IsClaimed() bool {
	return c.ClaimedBy != nil && *c.ClaimedBy != ""
}
