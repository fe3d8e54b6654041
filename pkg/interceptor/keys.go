package interceptor

// Outbound metadata keys.
const (
	KeyAuthorization        = "authorization"
	KeyRequestID            = "x-request-id"
	KeyStreamID             = "x-stream-id"
	KeyTimestamp            = "x-timestamp"
	KeyNonce                = "x-nonce"
	KeyRequestSignature     = "x-request-signature"
	KeyStreamSignature      = "x-stream-signature"
	KeyEncryptedAccessToken = "x-encrypted-access-token"
	KeyEncryptedUserEmail   = "x-encrypted-user-email"
	KeyEncryptedUserID      = "x-encrypted-user-id"
	KeyEncryptedISR         = "x-encrypted-isr"
	KeyRuntimeNumber        = "x-request-runtime-number"
	KeyRuntimeTime          = "x-request-runtime-time"
	KeyOS                   = "os"
	KeyClientIPAddress      = "client_ip_address"
	KeyCountryIPCode        = "country_ip_code"
	KeyOSServerVersion      = "os_server_version"
)

const (
	bearerPrefix        = "Bearer "
	streamBodyTagPrefix = "stream:"
)
