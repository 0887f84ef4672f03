package wishlist

// User is the authenticated identity reported by session-check.
type User struct {
	ID        string `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Provider  string `json:"provider,omitempty"`
}

// SessionInfo is the session-check response.
type SessionInfo struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user,omitempty"`
}

// IssueRef identifies a stored wishlist in write responses.
type IssueRef struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
}

// SubmitResult is the success payload of submit-wishlist.
type SubmitResult struct {
	Issue IssueRef `json:"issue"`
}

// CloseResult is the success payload of close-wishlist.
type CloseResult struct {
	Issue IssueRef `json:"issue"`
	// AlreadyClosed is set when the record was closed before this request.
	AlreadyClosed bool `json:"alreadyClosed,omitempty"`
}
