package wishlist

import "strings"

// DefaultProvider qualifies logins that name no code host.
const DefaultProvider = "github"

// Identity returns the provider-qualified account key "provider:login",
// lowercased. Logins on different code hosts never share a key. An empty
// provider means DefaultProvider; an empty login yields "".
func Identity(provider, login string) string {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return ""
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = DefaultProvider
	}
	return provider + ":" + login
}

// ParseIdentity normalizes a stored or configured account key. A bare login
// is qualified with DefaultProvider.
func ParseIdentity(s string) string {
	if provider, login, ok := strings.Cut(strings.TrimSpace(s), ":"); ok {
		return Identity(provider, login)
	}
	return Identity("", s)
}

// Identity returns the provider-qualified key of u.
func (u User) Identity() string {
	return Identity(u.Provider, u.Login)
}
