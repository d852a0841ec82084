package auth

import (
	"github.com/PlebeianApp/market-sub002/engine/library"
)

// Mapped is a copy of the current authorization state, safe to hand to
// readers outside the write path.
type Mapped struct {
	Admins     []library.Account `json:"admins"`
	Editors    []library.Account `json:"editors"`
	Owner      library.Account   `json:"owner"`
	Configured bool              `json:"configured"`
}
