package hash

import "golang.org/x/crypto/bcrypt"

// Bcrypt hashes passwords with a cost fixed at construction.
type Bcrypt struct {
	cost int
}

// NewBcrypt clamps cost into the range bcrypt accepts.
func NewBcrypt(cost int) Bcrypt {
	switch {
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return Bcrypt{cost: cost}
}

func (b Bcrypt) Cost() int { return b.cost }

func (b Bcrypt) Hash(password string) (string, error) {
	hashbytes, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(hashbytes), nil
}

func (b Bcrypt) Verify(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
