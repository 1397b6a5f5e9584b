package models

import (
	"strings"
	"time"
	"unicode"
)

// PaymentCard is the raw card data received with a purchase request. It is
// only used to build a PaymentSummary and is never persisted.
type PaymentCard struct {
	Number string `json:"card_number"`
	Brand  string `json:"card_brand"`
}

type PaymentSummary struct {
	CardBrand string    `json:"card_brand"`
	Last4     string    `json:"last4"`
	PaidAt    time.Time `json:"paid_at"`
}

// NewPaymentSummary keeps the card brand and the last four digits only.
func NewPaymentSummary(card PaymentCard, paidAt time.Time) PaymentSummary {
	digits := make([]rune, 0, len(card.Number))
	for _, r := range card.Number {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}

	return PaymentSummary{
		CardBrand: strings.TrimSpace(card.Brand),
		Last4:     string(digits),
		PaidAt:    paidAt,
	}
}
