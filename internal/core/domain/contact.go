package domain

// ContactRecord is an address book entry.
type ContactRecord struct {
	ID            int64  `json:"id"`
	WalletAddress string `json:"walletAddress"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Color         string `json:"color"`
	CreatedAt     int64  `json:"createdAt"`
	UpdatedAt     int64  `json:"updatedAt"`
}

// DefaultContactColor is applied when a contact is saved without a color.
const DefaultContactColor = "#1890ff"
