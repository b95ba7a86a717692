// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package types

import (
	"strings"

	atriumerr "github.com/atrium-host/atrium/pkg/errors"
)

// Environment classifies a deployment. Boot reconciliation is stricter in
// production than elsewhere.
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
)

// Valid reports whether e is a recognized environment.
func (e Environment) Valid() bool {
	switch e {
	case EnvProduction, EnvDevelopment, EnvTest:
		return true
	default:
		return false
	}
}

// Production reports whether the environment gets the strict boot rules.
func (e Environment) Production() bool {
	return e == EnvProduction
}

// ParseEnvironment parses a case-insensitive string into an Environment.
func ParseEnvironment(s string) (Environment, error) {
	e := Environment(strings.ToLower(s))
	if !e.Valid() {
		return "", atriumerr.Errorf(atriumerr.CodeConfigValidateInvalidValue,
			"invalid environment: %q", s)
	}
	return e, nil
}
