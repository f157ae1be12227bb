package models

import "time"

// ConfirmationType — тип ожидающего подтверждения.
type ConfirmationType int

const (
	ConfirmationUnknown ConfirmationType = 1
	ConfirmationTrade   ConfirmationType = 2
	ConfirmationListing ConfirmationType = 3
	ConfirmationAPIKey  ConfirmationType = 4
)

// ConfirmationTypeOf маппит числовой код платформы в ConfirmationType.
// Неизвестные коды сводятся к ConfirmationUnknown.
func ConfirmationTypeOf(v int) ConfirmationType {
	switch v {
	case 2:
		return ConfirmationTrade
	case 3:
		return ConfirmationListing
	case 4:
		return ConfirmationAPIKey
	default:
		return ConfirmationUnknown
	}
}

// Confirmation — read-only слепок ожидающего подтверждения,
// полученный от платформы. Ядро его не кэширует.
//
// Nonce обязателен для операций allow/cancel (параметр ck).
type Confirmation struct {
	ID           int64
	Nonce        string
	CreatorID    int64
	Type         ConfirmationType
	Headline     string
	Summary      string
	CreationTime time.Time
}
