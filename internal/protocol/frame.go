// Package protocol decodes inbound socket frames, validates them, routes
// them to the hub components, and serializes direct responses.
package protocol

import "encoding/json"

// FrameKind is the closed set of inbound frame types. Dispatch is an
// exhaustive switch over these; anything else is ignored.
type FrameKind string

const (
	KindMessage         FrameKind = "message"
	KindTyping          FrameKind = "typing"
	KindMessageRead     FrameKind = "message_read"
	KindMessageReaction FrameKind = "message_reaction"
	KindMessageEdit     FrameKind = "message_edit"
	KindMessageDelete   FrameKind = "message_delete"
	KindFileMessage     FrameKind = "file_message"
	KindUserActivity    FrameKind = "user_activity"
	KindCallInitiate    FrameKind = "call_initiate"
	KindCallAccept      FrameKind = "call_accept"
	KindCallReject      FrameKind = "call_reject"
	KindCallEnd         FrameKind = "call_end"
	KindWebRTCOffer     FrameKind = "webrtc_offer"
	KindWebRTCAnswer    FrameKind = "webrtc_answer"
	KindWebRTCICE       FrameKind = "webrtc_ice_candidate"
)

// envelope carries the discriminator; the full frame is re-decoded into
// the kind-specific struct.
type envelope struct {
	Type FrameKind `json:"type"`
}

type messageFrame struct {
	Message string `json:"message"`
	TempID  string `json:"temp_id"`
}

type typingFrame struct {
	IsTyping bool `json:"is_typing"`
}

type messageReadFrame struct {
	MessageID int64 `json:"message_id" validate:"required"`
}

type reactionFrame struct {
	MessageID int64  `json:"message_id" validate:"required"`
	Emoji     string `json:"emoji" validate:"required"`
	Action    string `json:"action" validate:"required,oneof=add remove"`
}

type editFrame struct {
	MessageID int64  `json:"message_id" validate:"required"`
	Content   string `json:"content" validate:"required"`
}

type deleteFrame struct {
	MessageID int64 `json:"message_id" validate:"required"`
}

type fileMessageFrame struct {
	MessageID int64 `json:"message_id" validate:"required"`
}

type userActivityFrame struct {
	Activity string `json:"activity" validate:"required,oneof=active away busy"`
}

type callInitiateFrame struct {
	CallType string `json:"call_type" validate:"required,oneof=audio video"`
	CalleeID int64  `json:"callee_id" validate:"required"`
}

type callControlFrame struct {
	CallID string `json:"call_id" validate:"required"`
}

type webrtcOfferFrame struct {
	CallID string          `json:"call_id" validate:"required"`
	Offer  json.RawMessage `json:"offer" validate:"required"`
}

type webrtcAnswerFrame struct {
	CallID string          `json:"call_id" validate:"required"`
	Answer json.RawMessage `json:"answer" validate:"required"`
}

type webrtcICEFrame struct {
	CallID    string          `json:"call_id" validate:"required"`
	Candidate json.RawMessage `json:"candidate" validate:"required"`
}

// errorFrame is the direct response for frames that parse but fail a
// validation, authorization, or lifecycle guard.
type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Request string `json:"request"`
	Message string `json:"message"`
}
