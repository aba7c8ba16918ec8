package relay

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const sessionIDLength = 10

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// NewSessionID returns a short lowercase base36 identifier taken from a random UUID.
// Collisions are possible but negligible for one handoff per desktop visit.
func NewSessionID() string {
	u := uuid.New()
	n := new(big.Int).SetBytes(u[:])
	id := n.Text(36)
	if len(id) < sessionIDLength {
		id = strings.Repeat("0", sessionIDLength-len(id)) + id
	}
	return id[len(id)-sessionIDLength:]
}

// ValidSessionID reports whether id is acceptable as a relay key.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}
