package archive

import "time"

const recordVersion = "1.0"

// TranscriptRecord is the JSON document stored per closed conversation.
type TranscriptRecord struct {
	Version         string    `json:"version"`
	ConversationID  string    `json:"conversation_id"`
	PhoneHash       string    `json:"phone_hash"`
	Category        string    `json:"category"`
	Status          string    `json:"status"`
	CloseReason     string    `json:"close_reason,omitempty"`
	LeadScore       int       `json:"lead_score"`
	LeadTemperature string    `json:"lead_temperature,omitempty"`
	Reactivations   int       `json:"reactivations"`
	ArchivedAt      time.Time `json:"archived_at"`
	MessageCount    int       `json:"message_count"`
	Messages        []Message `json:"messages"`
}

type Message struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ManifestEntry is one JSONL line of the monthly manifest.
type ManifestEntry struct {
	ConversationID string `json:"conversation_id"`
	Key            string `json:"key"`
	Category       string `json:"category"`
	LeadScore      int    `json:"lead_score"`
	CloseReason    string `json:"close_reason,omitempty"`
	ArchivedAt     string `json:"archived_at"`
	MessageCount   int    `json:"message_count"`
}
