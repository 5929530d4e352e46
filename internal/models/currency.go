package models

import "time"

// Currency is a tradable asset identified by a unique name and ticker
// symbol. Currencies are immutable after creation.
type Currency struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	CreatedAt time.Time `json:"created_at"`
}
