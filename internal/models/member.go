package models

import "time"

type Member struct {
	ID           int64
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}
