package auth

// OAuth scopes accepted by the health data API.
const (
	ScopeHealthWrite = "health:write"
	ScopeHealthRead  = "health:read"
)
