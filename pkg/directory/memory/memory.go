// Package memory provides an in-memory directory for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/caseflow-io/caseflow/pkg/directory"
)

type Directory struct {
	mu       sync.RWMutex
	users    map[string]*directory.User
	emps     map[string]*directory.Employee
	accounts map[string][]*directory.ThirdPartyAccount
}

func NewDirectory() *Directory {
	return &Directory{
		users:    make(map[string]*directory.User),
		emps:     make(map[string]*directory.Employee),
		accounts: make(map[string][]*directory.ThirdPartyAccount),
	}
}

func (d *Directory) Users() directory.Users                           { return (*userStore)(d) }
func (d *Directory) Employees() directory.Employees                   { return (*employeeStore)(d) }
func (d *Directory) ThirdPartyAccounts() directory.ThirdPartyAccounts { return (*accountStore)(d) }

type userStore Directory

func (s *userStore) Create(_ context.Context, user *directory.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == user.Email {
			return fmt.Errorf("email %q: %w", user.Email, directory.ErrUserExists)
		}
	}

	u := *user
	s.users[user.ID] = &u

	return nil
}

func (s *userStore) GetByEmail(_ context.Context, email string) (*directory.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Email == email {
			u := *user

			return &u, nil
		}
	}

	return nil, nil
}

type employeeStore Directory

func (s *employeeStore) Create(_ context.Context, employee *directory.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *employee
	s.emps[employee.ID] = &e

	return nil
}

func (s *employeeStore) GetByID(_ context.Context, id string) (*directory.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employee, ok := s.emps[id]
	if !ok {
		return nil, nil
	}

	e := *employee

	return &e, nil
}

func (s *employeeStore) Update(_ context.Context, employee *directory.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.emps[employee.ID]; !ok {
		return fmt.Errorf("employee %q: %w", employee.ID, directory.ErrEmployeeNotFound)
	}

	e := *employee
	s.emps[employee.ID] = &e

	return nil
}

type accountStore Directory

func (s *accountStore) Add(_ context.Context, account *directory.ThirdPartyAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := *account
	s.accounts[account.EmployeeID] = append(s.accounts[account.EmployeeID], &a)

	return nil
}

func (s *accountStore) ListByEmployee(_ context.Context, employeeID string) ([]*directory.ThirdPartyAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := s.accounts[employeeID]
	out := make([]*directory.ThirdPartyAccount, 0, len(accounts))

	for _, account := range accounts {
		a := *account
		out = append(out, &a)
	}

	return out, nil
}
