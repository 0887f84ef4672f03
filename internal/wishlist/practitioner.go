package wishlist

// Practitioner is a service provider profile that can be matched against wishlists.
type Practitioner struct {
	ID         string   `json:"id"`
	Login      string   `json:"login"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Title      string   `json:"title,omitempty"`
	Company    string   `json:"company,omitempty"`
	Services   []string `json:"services"`
	ProfileURL string   `json:"profileUrl,omitempty"`
	Approved   bool     `json:"approved"`
	CreatedAt  int64    `json:"createdAt"`
	UpdatedAt  int64    `json:"updatedAt"`
}

// Offers reports whether the practitioner lists service id.
func (p Practitioner) Offers(id string) bool {
	for _, s := range p.Services {
		if s == id {
			return true
		}
	}
	return false
}
