package chargerauth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Hasher defines password hashing contract.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BcryptHasher implements Hasher using bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a bcrypt-backed hasher. Zero cost means bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash converts a plain password into a bcrypt hash.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("chargerauth: empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Compare checks a password against a stored hash.
func (h *BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// Verifier admits charge points whose basic auth password matches the configured hash for
// their identifier. The username must equal the identifier.
type Verifier struct {
	hashes map[string]string
	hasher Hasher
}

// NewVerifier returns nil when no credentials are configured, which disables the check.
func NewVerifier(hashes map[string]string, hasher Hasher) *Verifier {
	if len(hashes) == 0 {
		return nil
	}
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	copied := make(map[string]string, len(hashes))
	for id, hash := range hashes {
		copied[id] = hash
	}
	return &Verifier{hashes: copied, hasher: hasher}
}

// Authenticate implements ws.Authenticator.
func (v *Verifier) Authenticate(chargePointID, username, password string) bool {
	if username != chargePointID {
		return false
	}
	hash, ok := v.hashes[chargePointID]
	if !ok {
		return false
	}
	return v.hasher.Compare(hash, password) == nil
}
