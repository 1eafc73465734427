// Package address handles the two representations a storage-network
// participant id is carried in: the "f0<digits>" address form used on the
// wire and in RPC calls, and the bare numeric id form used as a database
// key. Conversions between the two are total once validated — there is no
// lossy direction.
package address

import (
	"fmt"
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`^f0\d{1,8}$`)

// ProviderAddress is a validated "f0<digits>" storage provider address.
type ProviderAddress struct {
	value string
}

// NewProviderAddress validates addr against the f0<digits> pattern (1-8
// digits after the prefix).
func NewProviderAddress(addr string) (ProviderAddress, error) {
	if !addressPattern.MatchString(addr) {
		return ProviderAddress{}, fmt.Errorf("invalid provider address: %s", addr)
	}
	return ProviderAddress{value: addr}, nil
}

// String returns the address in its "f0<digits>" form.
func (a ProviderAddress) String() string { return a.value }

// ID strips the "f0" prefix, returning the bare numeric id.
func (a ProviderAddress) ID() ProviderID {
	return ProviderID{value: strings.TrimPrefix(a.value, "f0")}
}

// ProviderID is a validated bare numeric storage provider id, as persisted
// in the database.
type ProviderID struct {
	value string
}

// NewProviderID validates id as non-empty, all-numeric, and at most 8
// characters.
func NewProviderID(id string) (ProviderID, error) {
	if !isNumeric(id) {
		return ProviderID{}, fmt.Errorf("invalid provider id: %s", id)
	}
	return ProviderID{value: id}, nil
}

// String returns the bare numeric id.
func (p ProviderID) String() string { return p.value }

// Address reattaches the "f0" prefix.
func (p ProviderID) Address() ProviderAddress {
	return ProviderAddress{value: "f0" + p.value}
}

// ClientAddress is a validated "f0<digits>" client address.
type ClientAddress struct {
	value string
}

// NewClientAddress validates addr against the f0<digits> pattern.
func NewClientAddress(addr string) (ClientAddress, error) {
	if !addressPattern.MatchString(addr) {
		return ClientAddress{}, fmt.Errorf("invalid client address: %s", addr)
	}
	return ClientAddress{value: addr}, nil
}

// String returns the address in its "f0<digits>" form.
func (a ClientAddress) String() string { return a.value }

// ID strips the "f0" prefix, returning the bare numeric id.
func (a ClientAddress) ID() ClientID {
	return ClientID{value: strings.TrimPrefix(a.value, "f0")}
}

// ClientID is a validated bare numeric client id.
type ClientID struct {
	value string
}

// NewClientID validates id as non-empty, all-numeric, and at most 8
// characters.
func NewClientID(id string) (ClientID, error) {
	if !isNumeric(id) {
		return ClientID{}, fmt.Errorf("invalid client id: %s", id)
	}
	return ClientID{value: id}, nil
}

// String returns the bare numeric id.
func (c ClientID) String() string { return c.value }

// Address reattaches the "f0" prefix.
func (c ClientID) Address() ClientAddress {
	return ClientAddress{value: "f0" + c.value}
}

func isNumeric(s string) bool {
	if s == "" || len(s) > 8 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
