package contextkeys

import "context"

type messageTypeKey struct{}

type MessageType string

const (
	MessageTypeText         MessageType = "text"
	MessageTypeCommand      MessageType = "command"
	MessageTypeOwnerCommand MessageType = "ownerCommand"
	MessageTypeUnknown      MessageType = "unknown"
)

func WithMessageType(ctx context.Context, msgType MessageType) context.Context {
	return context.WithValue(ctx, messageTypeKey{}, msgType)
}

func GetMessageType(ctx context.Context) (MessageType, bool) {
	v := ctx.Value(messageTypeKey{})
	if v == nil {
		return MessageTypeUnknown, false
	}
	return v.(MessageType), true
}
