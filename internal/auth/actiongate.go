package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// Gated ledger actions
const (
	ActionRegisterProduct = "register_product"
	ActionFundEscrow      = "fund_escrow"
	ActionAddEvent        = "add_event"
)

// ActionGate authorizes privileged ledger mutations. It is a pluggable
// precondition in front of the state machine: the ledger core only ever sees
// already-authorized calls and never holds action secrets itself.
type ActionGate struct {
	digests map[string][]byte // action -> bcrypt digest of its secret
}

// NewActionGate hashes the given action secrets. Secrets are not retained;
// only their bcrypt digests are kept for verification.
func NewActionGate(secrets map[string]string) (*ActionGate, error) {
	digests := make(map[string][]byte, len(secrets))
	for action, secret := range secrets {
		digest, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		digests[action] = digest
	}
	return &ActionGate{digests: digests}, nil
}

// Verify reports whether secret authorizes the given action. Unknown actions
// never verify.
func (g *ActionGate) Verify(secret, action string) bool {
	digest, ok := g.digests[action]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(digest, []byte(secret)) == nil
}
