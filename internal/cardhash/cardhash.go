// Package cardhash derives a stable identity for a card from its content, so
// re-importing an unchanged deck maps onto the same rows and keeps their
// review history.
package cardhash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/conorfennell/memorium/internal/domain"
)

func normalizePart(part string) string {
	p := strings.ReplaceAll(part, "\r\n", "\n")
	return strings.ToLower(strings.TrimSpace(p))
}

// Normalize joins the card's front, back and context after lowercasing and
// trimming each. Examples are not part of a card's identity.
func Normalize(card domain.Card) string {
	return strings.Join([]string{
		normalizePart(card.Front),
		normalizePart(card.Back),
		normalizePart(card.Context),
	}, "\n")
}

// Sum returns the hex SHA-256 of the normalized card.
func Sum(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return hex.EncodeToString(sum[:])
}
