package store

// User is a directory entry plus presence flags.
type User struct {
	ID          int64
	Username    string
	DisplayName string
	IsOnline    bool
	LastSeen    int64
}

// Conversation groups two or more participants.
type Conversation struct {
	ID        int64
	CreatedAt int64
	UpdatedAt int64
}

// Message is a durable chat message. Timestamps are unix milliseconds;
// optional ones are zero when unset. Deleted messages keep their content
// for audit and restore.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	SenderName     string
	Content        string
	Type           string // text, image, file
	Status         string // sent, delivered, read
	IsEdited       bool
	EditedAt       int64
	IsDeleted      bool
	DeletedAt      int64
	DeletedBy      int64
	FileName       string
	FileSize       int64
	FileURL        string
	Timestamp      int64
}

// DisplayContent returns what clients should render for the message.
// Derivation is pure: stored content is never overwritten by a delete.
func (m *Message) DisplayContent() string {
	if m.IsDeleted {
		return "This message was deleted"
	}
	return m.Content
}

// MessageEdit is one append-only audit record of a content change.
type MessageEdit struct {
	ID         int64
	MessageID  int64
	OldContent string
	NewContent string
	EditorID   int64
	EditedAt   int64
}

// Reaction is one (message, user, emoji) row.
type Reaction struct {
	MessageID int64
	UserID    int64
	Username  string
	Emoji     string
	CreatedAt int64
}

// TypingStatus is the last-write-wins typing flag per (conversation, user).
type TypingStatus struct {
	ConversationID int64
	UserID         int64
	IsTyping       bool
	UpdatedAt      int64
}

// Call is a durable call session. DurationMs is endedAt-acceptedAt, or 0
// for calls that never reached accepted.
type Call struct {
	ID             int64
	CallID         string
	ConversationID int64
	CallerID       int64
	CalleeID       int64
	Type           string // audio, video
	Status         string
	InitiatedAt    int64
	AcceptedAt     int64
	EndedAt        int64
	DurationMs     int64
}
