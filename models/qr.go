package models

import (
	"encoding/json"
	"errors"
)

var errIncompleteQRPayload = errors.New("qr payload: ticketNumber and eventId are required")

// QRPayload is the text encoded in a ticket's QR code. Field names and the
// null verificationCode must stay stable so previously issued tickets keep
// scanning.
type QRPayload struct {
	TicketNumber     string  `json:"ticketNumber"`
	EventID          string  `json:"eventId"`
	VerificationCode *string `json:"verificationCode"`
}

func (p QRPayload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Code returns the verification code, or "" when the ticket has none.
func (p QRPayload) Code() string {
	if p.VerificationCode == nil {
		return ""
	}
	return *p.VerificationCode
}

func ParseQRPayload(text string) (QRPayload, error) {
	var p QRPayload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return QRPayload{}, err
	}
	if p.TicketNumber == "" || p.EventID == "" {
		return QRPayload{}, errIncompleteQRPayload
	}
	return p, nil
}
