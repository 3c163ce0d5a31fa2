package store

import "time"

type User struct {
	ID           string
	Username     string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Profile struct {
	UserID     string
	Phone      string
	City       string
	State      string
	PostalCode string
	BirthDate  *time.Time
	PhotoKey   string
	UpdatedAt  time.Time
}

type Category struct {
	ID          string
	Name        string
	Description string
}

// Item status values mirror the catalog lifecycle: an item is reported
// lost or found, and marked returned once handed back.
const (
	ItemLost     = "lost"
	ItemFound    = "found"
	ItemReturned = "returned"
)

type Item struct {
	ID          string
	Slug        string
	Title       string
	Description string
	Status      string
	Location    string
	EventDate   *time.Time
	ImageKey    string
	OwnerID     string
	CategoryID  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemFilter narrows item listings. Zero values mean "no filter".
type ItemFilter struct {
	Query      string
	Status     string
	CategoryID string
	OwnerID    string
	Limit      int
	Offset     int
}

const (
	ChatActive = "active"
	ChatClosed = "closed"
)

// Chat is one negotiation thread about one item between the initiator
// and the item's owner at creation time. ItemID goes nil if the item is
// later deleted; the conversation survives as history.
type Chat struct {
	ID          string
	ItemID      *string
	InitiatorID string
	OwnerID     string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChatSummary is a chat row joined with the data the inbox listing needs.
type ChatSummary struct {
	Chat
	InitiatorName string
	OwnerName     string
	ItemTitle     string
	UnreadCount   int
}

const (
	MessageText  = "text"
	MessageImage = "image"
)

type Message struct {
	ID         string
	ChatID     string
	SenderID   string
	SenderName string
	Content    string
	Kind       string
	SentAt     time.Time
	Read       bool
}

// ItemCounts are the catalog totals shown on listing pages.
type ItemCounts struct {
	Total int
	Lost  int
	Found int
}
