package domain

type Command interface {
	Conversation() ConversationID
}

// SendMessageCommand carries one logical send attempt into a conversation
// worker. Reply receives exactly one SendResult; it must be buffered so the
// worker never blocks on a caller that already gave up.
type SendMessageCommand struct {
	ConversationID ConversationID
	Sender         Identity
	DedupToken     string
	Body           string
	Reply          chan<- SendResult
}

func (c SendMessageCommand) Conversation() ConversationID {
	return c.ConversationID
}

// SendResult is the direct outcome of a send: the canonical acknowledgment,
// whether this call created the row, or the error that prevented a write.
type SendResult struct {
	Ack       Acknowledgment
	Duplicate bool
	Err       error
}
