package domain

import "strings"

// Role — роль идентичности из bearer-токена.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Identity — проверенная идентичность вызывающего.
type Identity struct {
	UserID string
	Role   Role
}

// Anonymous сообщает, что запрос пришёл без учётных данных.
func (i Identity) Anonymous() bool {
	return strings.TrimSpace(i.UserID) == ""
}

// IsAdmin сообщает, есть ли у идентичности административная роль.
func (i Identity) IsAdmin() bool {
	return !i.Anonymous() && i.Role == RoleAdmin
}

// CanAccess разрешает доступ владельцу заказа и администратору.
func (i Identity) CanAccess(order Order) bool {
	if i.Anonymous() {
		return false
	}
	return i.IsAdmin() || order.CustomerID == i.UserID
}
