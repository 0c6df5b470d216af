package models

// Message is a chat message looked up by channel and timestamp
type Message struct {
	ChannelID string
	Timestamp string
	ThreadTS  string // empty unless the message belongs to a thread
	User      string
	Text      string
}

// ReplyThread returns the thread a reply to this message belongs in
func (m Message) ReplyThread() string {
	if m.ThreadTS != "" {
		return m.ThreadTS
	}
	return m.Timestamp
}
