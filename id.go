package fundpool

import "github.com/xraph/fundpool/id"

// ID is the primary identifier type for all Fundpool entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
