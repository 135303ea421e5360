/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package session

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// StaticCredentials checks passwords against a fixed set of bcrypt hashes keyed by username.
// Usernames are case-insensitive since configuration keys are lowercased when loaded.
type StaticCredentials map[string]string

// Verify implements Credentials.
func (sc StaticCredentials) Verify(_ context.Context, username, password string) error {
	hash, ok := sc[strings.ToLower(username)]
	if !ok {
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrBadCredentials
		}
		return errors.Wrapf(err, "check password of %s", username)
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for StaticCredentials.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(hash), nil
}
