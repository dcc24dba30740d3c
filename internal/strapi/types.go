package strapi

import "time"

// Group is the CMS-side entity representing one conversation.
type Group struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Tag is a reviewer-facing label looked up or created by name.
type Tag struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// RemoteMessage is a message as the CMS returns it.
type RemoteMessage struct {
	ID      int       `json:"id"`
	Content string    `json:"content"`
	Date    time.Time `json:"date"`
	Author  string    `json:"author"`
}

// Links is the nested link container the CMS message schema expects.
type Links struct {
	Links []string `json:"links"`
}

// MessagePayload is the message create payload. Staged JSON files hold an
// array of exactly this shape, so a staged batch uploads without reshaping.
type MessagePayload struct {
	Content       string    `json:"content"`
	Date          time.Time `json:"date"`
	Author        string    `json:"author"`
	WhatsappGroup int       `json:"whatsapp_group"`
	Tags          []string  `json:"tags"`
	Links         Links     `json:"links"`
	HasLinks      bool      `json:"hasLinks"`
	Media         *string   `json:"media"`
}

// GroupPayload is the group create payload.
type GroupPayload struct {
	Name string `json:"name"`
}

// TagPayload is the tag create payload.
type TagPayload struct {
	Name string `json:"name"`
}
