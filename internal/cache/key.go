package cache

import (
	"strings"
)

// Domain is the fixed prefix every cache key starts with.
type Domain string

const (
	DomainTokenSwap       Domain = "TokenSwap"
	DomainPatient         Domain = "Patient"
	DomainPersonalAccount Domain = "PersonalAccount"
	DomainCommunication   Domain = "Communication"
)

// Domains lists every known key prefix in a stable order.
func Domains() []Domain {
	return []Domain{DomainTokenSwap, DomainPatient, DomainPersonalAccount, DomainCommunication}
}

func (d Domain) String() string { return string(d) }

const keySeparator = ":"

var keyEscaper = strings.NewReplacer(`\`, `\\`, keySeparator, `\:`)

// Key joins the domain and parts with colons. Parts are escaped so an
// identifier containing the separator cannot alias a different key shape.
// Empty parts are kept as empty segments; dropping them would let
// Key(d, "", "x") and Key(d, "x") collide.
func Key(domain Domain, parts ...string) string {
	var b strings.Builder
	b.WriteString(string(domain))
	for _, part := range parts {
		b.WriteString(keySeparator)
		b.WriteString(keyEscaper.Replace(part))
	}
	return b.String()
}
