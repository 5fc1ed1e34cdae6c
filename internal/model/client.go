package model

import "time"

// Client is a customer account. AMID points at the user acting as the
// client's account manager; it is nil while unassigned.
type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	AMID      *int64    `json:"am_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
