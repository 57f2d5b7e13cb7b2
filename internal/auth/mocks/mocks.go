// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/mail"
)

// MockUserRepository is a mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a MockUserRepository whose expectations are
// asserted when the test ends.
func NewMockUserRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockUserRepository {
	m := &MockUserRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create mocks UserRepository.Create.
func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// GetByID mocks UserRepository.GetByID.
func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	return userOrNil(args.Get(0)), args.Error(1)
}

// GetByEmail mocks UserRepository.GetByEmail.
func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	return userOrNil(args.Get(0)), args.Error(1)
}

// GetByProviderID mocks UserRepository.GetByProviderID.
func (m *MockUserRepository) GetByProviderID(ctx context.Context, provider auth.Provider, providerID string) (*auth.User, error) {
	args := m.Called(ctx, provider, providerID)
	return userOrNil(args.Get(0)), args.Error(1)
}

// Update mocks UserRepository.Update.
func (m *MockUserRepository) Update(ctx context.Context, id ulid.ULID, patch auth.UserPatch) (*auth.User, error) {
	args := m.Called(ctx, id, patch)
	return userOrNil(args.Get(0)), args.Error(1)
}

func userOrNil(v any) *auth.User {
	if v == nil {
		return nil
	}
	return v.(*auth.User)
}

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a MockPasswordHasher.
func NewMockPasswordHasher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash mocks PasswordHasher.Hash.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

// Verify mocks PasswordHasher.Verify.
func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

// NeedsUpgrade mocks PasswordHasher.NeedsUpgrade.
func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	args := m.Called(hash)
	return args.Bool(0)
}

// MockConfirmationStore is a mock of auth.ConfirmationStore.
type MockConfirmationStore struct {
	mock.Mock
}

// NewMockConfirmationStore creates a MockConfirmationStore.
func NewMockConfirmationStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockConfirmationStore {
	m := &MockConfirmationStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Set mocks ConfirmationStore.Set.
func (m *MockConfirmationStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

// Get mocks ConfirmationStore.Get.
func (m *MockConfirmationStore) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

// Del mocks ConfirmationStore.Del.
func (m *MockConfirmationStore) Del(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockMailer is a mock of auth.Mailer.
type MockMailer struct {
	mock.Mock
}

// NewMockMailer creates a MockMailer.
func NewMockMailer(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockMailer {
	m := &MockMailer{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Dispatch mocks Mailer.Dispatch.
func (m *MockMailer) Dispatch(ctx context.Context, msg mail.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
