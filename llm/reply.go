package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Reply is the raw response of a generation service. It is one of
// MappingReply, MessageReply or OpaqueReply.
type Reply interface {
	isReply()
}

// MappingReply is a decoded JSON object; the answer lives at message.content.
type MappingReply map[string]interface{}

// MessageReply is a typed client response exposing a message field.
// Raw keeps the full client response for the fallback rendering.
type MessageReply struct {
	Message *Message
	Raw     interface{}
}

// OpaqueReply is anything else, e.g. a body that was not JSON.
type OpaqueReply struct {
	Value interface{}
}

func (MappingReply) isReply() {}
func (MessageReply) isReply() {}
func (OpaqueReply) isReply()  {}

// ExtractAnswer returns the answer text carried by r. When the expected
// message content is missing or empty it falls back to a rendering of the
// whole reply.
func ExtractAnswer(r Reply) string {
	switch reply := r.(type) {
	case MappingReply:
		if msg, ok := reply["message"].(map[string]interface{}); ok {
			if content, ok := msg["content"].(string); ok && content != "" {
				return content
			}
		}
		return render(map[string]interface{}(reply))
	case MessageReply:
		if reply.Message != nil && reply.Message.Content != "" {
			return reply.Message.Content
		}
		if reply.Raw != nil {
			return render(reply.Raw)
		}
		return render(reply.Message)
	case OpaqueReply:
		return render(reply.Value)
	case nil:
		return ""
	default:
		return render(reply)
	}
}

func render(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	}
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return strings.TrimSpace(fmt.Sprintf("%+v", v))
	}
	return string(b)
}
