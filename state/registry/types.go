package registry

import (
	"github.com/PlebeianApp/market-sub002/engine/library"
)

// Record is one alias registration. Records with ValidUntil in the past are
// inert: lookups skip them, but they stay in the table until the alias is
// purchased again and the next snapshot supersedes them.
type Record struct {
	Name       library.Alias   `json:"name"`
	Owner      library.Account `json:"owner"`
	ValidUntil int64           `json:"valid_until"`
}

type Mapped map[library.Alias]Record
