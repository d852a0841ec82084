package library

type Wallet struct {
	PrivateKey string
	SeedWords  string
	Account    Account
}

// Account is a hex-encoded nostr public key.
type Account = string

// Alias is a lowercased human-readable name held in the registry.
type Alias = string

type Sha256 = string
