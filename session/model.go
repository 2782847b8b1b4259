package session

// Record is the stored metadata for one issued credential pair. It is an
// audit/management aid: token validity is decided by signature, expiry, and
// the revocation set, never by the presence of a Record.
type Record struct {
	SessionID      string
	UserID         string
	AccessTokenID  string
	RefreshTokenID string
	DeviceInfo     string
	SourceIP       string

	CreatedAt int64
	ExpiresAt int64

	SchemaVersion uint8
}
