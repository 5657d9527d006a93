package consts

const (
	TokenRevokedKey = "token:revoked:"
	IMUserKey       = "im:user:"
)
