package models

const (
	TransactionSell     = "sell"
	TransactionExchange = "exchange"
	TransactionFree     = "free"
)

const (
	PostStatusDraft  = "draft"
	PostStatusPosted = "posted"
)

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
)

const (
	NotificationNewPostInInterest    = "NEW_POST_IN_INTEREST"
	NotificationNewMessage           = "NEW_MESSAGE"
	NotificationNewRating            = "NEW_RATING"
	NotificationTransactionCompleted = "TRANSACTION_COMPLETED"
	NotificationSystem               = "SYSTEM"
)

// MaxImages 投稿・評価に添付できる画像の上限
const MaxImages = 10

func ValidTransactionType(t string) bool {
	switch t {
	case TransactionSell, TransactionExchange, TransactionFree:
		return true
	}
	return false
}

func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

func ValidPostStatus(s string) bool {
	return s == PostStatusDraft || s == PostStatusPosted
}
