// internal/storage/models/base.go
package models

import "time"

// BaseModel holds the columns shared by every journal table.
type BaseModel struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}
