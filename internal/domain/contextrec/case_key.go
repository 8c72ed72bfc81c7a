// Package contextrec defines the core value objects of the context engine:
// case keys, scopes, dimensions, and the assembled context record.
package contextrec

import (
	"fmt"

	"casecontext-backend/internal/errors"
)

// CaseKey identifies the isolation boundary for every upstream query and
// cache entry: no data tagged with one key may ever serve another.
type CaseKey struct {
	ClientID string `json:"client_id"`
	CaseID   string `json:"case_id"`
}

// NewCaseKey constructs a validated case key.
func NewCaseKey(clientID, caseID string) (CaseKey, error) {
	k := CaseKey{ClientID: clientID, CaseID: caseID}
	if err := k.Validate(); err != nil {
		return CaseKey{}, err
	}
	return k, nil
}

// Validate checks that both components are non-empty.
func (k CaseKey) Validate() error {
	if k.ClientID == "" {
		return errors.NewValidation("client_id must not be empty")
	}
	if k.CaseID == "" {
		return errors.NewValidation("case_id must not be empty")
	}
	return nil
}

// String renders the key for logging and per-case registries.
func (k CaseKey) String() string {
	return fmt.Sprintf("%s/%s", k.ClientID, k.CaseID)
}
