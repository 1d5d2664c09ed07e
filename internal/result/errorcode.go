package result

import "strings"

// ErrorType classifies where a failure happened.
type ErrorType string

const (
	// CommunicationInternal is a failure talking to a system we own.
	CommunicationInternal ErrorType = "CI"
	// CommunicationExternal is a failure talking to a third party.
	CommunicationExternal ErrorType = "CE"
	// InvalidState is a programmer or data error inside this process.
	InvalidState ErrorType = "IS"
)

// ServiceType names the upstream system involved in a failure.
type ServiceType string

const (
	Database         ServiceType = "DB"
	ClientRegistries ServiceType = "CR"
	PHSA             ServiceType = "PHSA"
	Patient          ServiceType = "PAT"
)

// Translator renders error codes prefixed with the emitting component.
type Translator struct {
	Source string
}

// DefaultTranslator prefixes codes with the service name.
var DefaultTranslator = Translator{Source: "gatewaycache"}

// ServiceError builds codes such as gatewaycache-CI-DB.
func (t Translator) ServiceError(errorType ErrorType, service ServiceType) string {
	return t.join(string(errorType), string(service))
}

// InternalError builds codes such as gatewaycache-IS.
func (t Translator) InternalError(errorType ErrorType) string {
	return t.join(string(errorType))
}

func (t Translator) join(parts ...string) string {
	source := strings.TrimSpace(t.Source)
	if source == "" {
		source = DefaultTranslator.Source
	}
	return source + "-" + strings.Join(parts, "-")
}

// ServiceError formats a code with the default translator.
func ServiceError(errorType ErrorType, service ServiceType) string {
	return DefaultTranslator.ServiceError(errorType, service)
}

// InternalError formats a code with the default translator.
func InternalError(errorType ErrorType) string {
	return DefaultTranslator.InternalError(errorType)
}
