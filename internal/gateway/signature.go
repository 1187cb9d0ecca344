package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	domainErrors "github.com/cassiomorais/paycore/internal/domain/errors"
)

// SignatureScheme verifies the keyed signature a gateway attaches to its
// webhook payloads. Each gateway documents its own canonical ordering;
// all schemes here share the HMAC-SHA256 keyed hash.
type SignatureScheme interface {
	// SignatureField names the payload field carrying the signature.
	SignatureField() string
	// CanonicalString builds the signed string from the payload fields,
	// excluding the signature field itself.
	CanonicalString(fields map[string]string) string
	// Sign computes the signature for the payload fields.
	Sign(fields map[string]string, secret []byte) string
	// Verify compares the payload's signature field against the computed
	// one in constant time.
	Verify(fields map[string]string, secret []byte) error
}

// SortedFieldScheme signs all fields except the signature field, sorted
// by key and joined as k=v pairs with '&'. This is the scheme both
// supported gateways document.
type SortedFieldScheme struct {
	Field string // signature field name, e.g. "sign"
}

func (s SortedFieldScheme) SignatureField() string { return s.Field }

func (s SortedFieldScheme) CanonicalString(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == s.Field {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}
	return strings.Join(pairs, "&")
}

func (s SortedFieldScheme) Sign(fields map[string]string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(s.CanonicalString(fields)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s SortedFieldScheme) Verify(fields map[string]string, secret []byte) error {
	provided, ok := fields[s.Field]
	if !ok || provided == "" {
		return domainErrors.ErrInvalidSignature
	}
	expected := s.Sign(fields, secret)
	if !hmac.Equal([]byte(strings.ToLower(provided)), []byte(expected)) {
		return domainErrors.ErrInvalidSignature
	}
	return nil
}

// SchemeFor returns the signature scheme a gateway uses for callbacks.
func SchemeFor(gatewayName string) (SignatureScheme, bool) {
	switch gatewayName {
	case "mockpay":
		return SortedFieldScheme{Field: "sign"}, true
	case "stripepay":
		return SortedFieldScheme{Field: "signature"}, true
	}
	return nil, false
}
