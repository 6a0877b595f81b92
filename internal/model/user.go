package model

// User is the identity record the pipeline reads; registration and signature
// verification live elsewhere.
type User struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	Email         *string `json:"email,omitempty"`
	WalletAddress *string `json:"wallet_address,omitempty"`
}
