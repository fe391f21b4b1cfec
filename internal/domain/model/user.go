package model

import "time"

// User — пользователь платформы (принципал).
// Хранится в таблице users. Каждый пользователь принадлежит ровно одной организации.
type User struct {
	// ID — UUID пользователя
	ID string
	// Email — уникальный адрес электронной почты
	Email string
	// PasswordHash — bcrypt-хэш пароля, никогда не отдаётся наружу
	PasswordHash string
	// FirstName — имя
	FirstName string
	// LastName — фамилия
	LastName string
	// Role — роль (super_admin, organization_admin, manager, creator, viewer)
	Role string
	// AvatarURL — ссылка на аватар (опционально)
	AvatarURL *string
	// OrganizationID — UUID организации
	OrganizationID string
	// IsActive — активен ли аккаунт
	IsActive bool
	// IsEmailVerified — подтверждён ли email
	IsEmailVerified bool
	// LastLoginAt — время последнего входа
	LastLoginAt *time.Time
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
	// DeletedAt — время мягкого удаления
	DeletedAt *time.Time
}

// DisplayName возвращает «Имя Фамилия», либо email, если имя не заполнено.
func (u *User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Email
	}
	return name
}

// UserSummary — краткие сведения о пользователе для представлений
// (согласующий в workflow, автор поста).
type UserSummary struct {
	ID          string
	DisplayName string
	Email       string
}
