// Package models defines the domain types for Ansuz.
package models

import (
	"path/filepath"
	"strings"
	"time"
)

// SystemAuthor is the reserved author value for non-participant chat
// events (joins, leaves, encryption notices). Messages with this author
// are never anonymized and never treated as taggable participants.
const SystemAuthor = "System"

// ExportPrefix is the fixed file-name prefix WhatsApp puts on chat exports.
const ExportPrefix = "WhatsApp Chat with "

// Message is one parsed chat-export message.
type Message struct {
	Date     time.Time `json:"date"`
	Author   string    `json:"author"`
	Body     string    `json:"body"`
	HasMedia bool      `json:"has_media"`
	MediaRef string    `json:"media_ref,omitempty"`
	Tags     []string  `json:"tags,omitempty"`
	Links    []string  `json:"links,omitempty"`
}

// IsSystem reports whether the message is a non-participant event.
func (m Message) IsSystem() bool {
	return m.Author == SystemAuthor
}

// Conversation represents one chat export: the files it arrived in and the
// local directory its text and media live in after extraction.
type Conversation struct {
	Name  string
	Dir   string
	Files []string
}

// StagedBatch is the unit written to a staging file. Message order must be
// preserved end-to-end: reply context and same-author grouping depend on it.
type StagedBatch struct {
	Conversation string    `json:"conversation"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
}

// RemoteFile identifies a drive object that is a candidate for download.
type RemoteFile struct {
	ID      string
	Name    string
	Trashed bool
}

// DeriveName computes a conversation name from an export file name by
// stripping the fixed "WhatsApp Chat with " prefix (case-insensitively)
// and the extension. It is a pure function of the file name so that
// re-processing the same conversation never yields a different name.
func DeriveName(fileName string) string {
	base := filepath.Base(fileName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if len(base) >= len(ExportPrefix) &&
		strings.EqualFold(base[:len(ExportPrefix)], ExportPrefix) {
		base = base[len(ExportPrefix):]
	}
	return strings.TrimSpace(base)
}
