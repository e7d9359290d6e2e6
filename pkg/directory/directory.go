// Package directory holds the collaborator interfaces the workflow engine
// depends on for identity data. Implementations live outside the engine;
// an in-memory one ships for tests and local development.
package directory

import (
	"context"
	"errors"
	"time"
)

var ErrUserExists = errors.New("user already exists")
var ErrEmployeeNotFound = errors.New("employee not found")

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type Employee struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id,omitempty"`
	FullName   string     `json:"full_name"`
	Email      string     `json:"email"`
	Department string     `json:"department,omitempty"`
	Title      string     `json:"title,omitempty"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type ThirdPartyAccount struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	System     string    `json:"system"`
	AccountID  string    `json:"account_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type Users interface {
	Create(ctx context.Context, user *User) error
	// GetByEmail returns nil when no user carries the email.
	GetByEmail(ctx context.Context, email string) (*User, error)
}

type Employees interface {
	Create(ctx context.Context, employee *Employee) error
	GetByID(ctx context.Context, id string) (*Employee, error)
	Update(ctx context.Context, employee *Employee) error
}

type ThirdPartyAccounts interface {
	Add(ctx context.Context, account *ThirdPartyAccount) error
	ListByEmployee(ctx context.Context, employeeID string) ([]*ThirdPartyAccount, error)
}

type Directory interface {
	Users() Users
	Employees() Employees
	ThirdPartyAccounts() ThirdPartyAccounts
}
