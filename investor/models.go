package investor

import (
	"time"

	"github.com/xraph/fundpool/id"
	"github.com/xraph/fundpool/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Investor is a member of the pool. Investors are created implicitly on
// their first deposit and are never deleted; a member who withdraws their
// entire position keeps an active record with a zero share.
type Investor struct {
	types.Entity
	ID        id.InvestorID     `json:"id"`
	Reference string            `json:"reference"` // External identity key, unique
	Status    Status            `json:"status"`
	JoinedAt  time.Time         `json:"joined_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// IsActive reports whether the investor may deposit and withdraw.
func (i *Investor) IsActive() bool {
	return i.Status == StatusActive
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
