package domain

// TokenValue is a signed token and its lifetime in seconds.
type TokenValue struct {
	Token   string
	Expires int64
}

// UserToken is the pair issued on login, refresh and oauth2 callback.
type UserToken struct {
	User    User
	Access  TokenValue
	Refresh TokenValue
}

// UserTokenAccess is the verified view of an access token.
type UserTokenAccess struct {
	User   User
	Access TokenValue
}

// UserKey is a user resolved through one of their keys.
type UserKey struct {
	User User
	Key  Key
}
