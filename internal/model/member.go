package model

import "time"

const (
	RoleMember        = "member"
	RoleAdministrator = "administrator"
)

type Member struct {
	ID        int64     `json:"id"`
	ScopeID   int64     `json:"scope_id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Scope struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
