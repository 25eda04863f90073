// internal/domain/models/authmethods.go
package models

// Auth methods.
const (
	AuthPassword = "password"
	AuthTrust    = "trust" // login id alone; accepted only when the server enables trust login
)

// AuthMethod represents an authentication method option.
type AuthMethod struct {
	Value string // The value stored in the database
	Label string // The display label
}

// AllAuthMethods contains all supported auth methods with their display labels.
var AllAuthMethods = []AuthMethod{
	{Value: AuthPassword, Label: "Password"},
	{Value: AuthTrust, Label: "Trust"},
}

// IsValidAuthMethod checks if a value is a valid auth method.
func IsValidAuthMethod(value string) bool {
	for _, m := range AllAuthMethods {
		if m.Value == value {
			return true
		}
	}
	return false
}
