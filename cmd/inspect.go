package main

import (
	"chat-relay/internal"
	"chat-relay/repositories"
	"fmt"
)

// MessageMapper enriches inspector rows with the decoded message body for
// "msg:" keys; every other namespace falls through to the raw view.
func MessageMapper(key string, val []byte) internal.InspectRow {
	row := internal.DefaultMapper(key, val)
	if row.Type != "MSG" {
		return row
	}

	message, err := repositories.DecodeStoredMessage(val)
	if err != nil {
		return row
	}
	row.Detail = fmt.Sprintf("%s: %s", message.SenderName, message.Body)
	return row
}
