package models

import "time"

// Usuario is an API user. Authentication is a thin layer over bcrypt + JWT;
// permission strings ride inside the token claims.
type Usuario struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Nome         string    `gorm:"not null" json:"nome"`
	Login        string    `gorm:"size:100;not null;uniqueIndex" json:"login"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Perfil       string    `gorm:"size:30;not null;default:'operador'" json:"perfil"` // admin, operador
	Ativo        bool      `gorm:"not null;default:true" json:"ativo"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
