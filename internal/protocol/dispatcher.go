package protocol

import (
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/mbenevides/hermes/internal/call"
	"github.com/mbenevides/hermes/internal/chat"
	"github.com/mbenevides/hermes/internal/presence"
	"github.com/mbenevides/hermes/internal/registry"
	"github.com/mbenevides/hermes/internal/rtc"
	"github.com/mbenevides/hermes/internal/store"
	"go.uber.org/zap"
)

// Conn is what the dispatcher needs of the connection a frame came in on.
type Conn interface {
	ID() string
	Identity() registry.Identity
	ConversationID() int64
	Send(payload []byte) error
}

// Dispatcher decodes one inbound frame per call, validates it, and routes
// it to the owning component. Handling is synchronous within a frame:
// the persistence call happens before the bus publish, so a subscriber
// never observes an event whose write is not yet durable.
type Dispatcher struct {
	validate *validator.Validate
	chat     *chat.Service
	presence *presence.Tracker
	calls    *call.Service
	relay    *rtc.Relay
	logger   *zap.Logger
}

// New creates a dispatcher over the hub components.
func New(chatSvc *chat.Service, tracker *presence.Tracker, callSvc *call.Service, relay *rtc.Relay, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		validate: validator.New(),
		chat:     chatSvc,
		presence: tracker,
		calls:    callSvc,
		relay:    relay,
		logger:   logger,
	}
}

// Dispatch handles one inbound frame. Frames whose JSON cannot be decoded
// are dropped with a log line; unknown types are ignored. Decoded frames
// that fail a guard produce an `error` frame back to the sender.
func (d *Dispatcher) Dispatch(conn Conn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		d.logger.Warn("undecodable frame dropped",
			zap.String("conn_id", conn.ID()), zap.Error(err))
		return
	}

	who := conn.Identity()
	convID := conn.ConversationID()

	var err error
	switch env.Type {
	case KindMessage:
		var f messageFrame
		if err = d.decode(data, &f); err == nil {
			_, err = d.chat.Send(convID, who, f.Message, f.TempID)
		}

	case KindTyping:
		var f typingFrame
		if err = d.decode(data, &f); err == nil {
			err = d.presence.SetTyping(who, convID, f.IsTyping)
		}

	case KindMessageRead:
		var f messageReadFrame
		if err = d.decode(data, &f); err == nil {
			err = d.chat.MarkRead(f.MessageID, who)
		}

	case KindMessageReaction:
		var f reactionFrame
		if err = json.Unmarshal(data, &f); err == nil {
			if f.Action == "" {
				f.Action = "add"
			}
			if err = d.validate.Struct(f); err == nil {
				err = d.chat.React(f.MessageID, who, f.Emoji, f.Action)
			}
		}

	case KindMessageEdit:
		var f editFrame
		if err = d.decode(data, &f); err == nil {
			err = d.chat.Edit(f.MessageID, who, f.Content)
		}

	case KindMessageDelete:
		var f deleteFrame
		if err = d.decode(data, &f); err == nil {
			err = d.chat.Delete(f.MessageID, who)
		}

	case KindFileMessage:
		var f fileMessageFrame
		if err = d.decode(data, &f); err == nil {
			err = d.chat.AnnounceFile(f.MessageID, who)
		}

	case KindUserActivity:
		var f userActivityFrame
		if err = json.Unmarshal(data, &f); err == nil {
			if f.Activity == "" {
				f.Activity = "active"
			}
			if err = d.validate.Struct(f); err == nil {
				err = d.presence.SetActivity(who, convID, f.Activity)
			}
		}

	case KindCallInitiate:
		var f callInitiateFrame
		if err = d.decode(data, &f); err == nil {
			_, err = d.calls.Initiate(convID, who, f.CalleeID, f.CallType)
		}

	case KindCallAccept:
		var f callControlFrame
		if err = d.decode(data, &f); err == nil {
			_, err = d.calls.Accept(f.CallID, who)
		}

	case KindCallReject:
		var f callControlFrame
		if err = d.decode(data, &f); err == nil {
			_, err = d.calls.Reject(f.CallID, who)
		}

	case KindCallEnd:
		var f callControlFrame
		if err = d.decode(data, &f); err == nil {
			_, err = d.calls.End(f.CallID, who)
		}

	case KindWebRTCOffer:
		var f webrtcOfferFrame
		if err = d.decode(data, &f); err == nil {
			err = d.relay.Forward(f.CallID, rtc.Offer, who, f.Offer)
		}

	case KindWebRTCAnswer:
		var f webrtcAnswerFrame
		if err = d.decode(data, &f); err == nil {
			err = d.relay.Forward(f.CallID, rtc.Answer, who, f.Answer)
		}

	case KindWebRTCICE:
		var f webrtcICEFrame
		if err = d.decode(data, &f); err == nil {
			err = d.relay.Forward(f.CallID, rtc.ICECandidate, who, f.Candidate)
		}

	default:
		d.logger.Debug("unknown frame type ignored",
			zap.String("type", string(env.Type)), zap.String("conn_id", conn.ID()))
		return
	}

	if err != nil {
		d.reject(conn, env.Type, err)
	}
}

func (d *Dispatcher) decode(data []byte, frame any) error {
	if err := json.Unmarshal(data, frame); err != nil {
		return err
	}
	return d.validate.Struct(frame)
}

// reject maps a component error to a stable error code and sends an
// `error` frame back to the offending connection. Socket-path and
// request-path callers see the same outcome for the same fault.
func (d *Dispatcher) reject(conn Conn, request FrameKind, err error) {
	code := "internal"
	switch {
	case isValidationError(err):
		code = "invalid_frame"
	case errors.Is(err, chat.ErrNotSender),
		errors.Is(err, call.ErrNotCallee),
		errors.Is(err, call.ErrNotParticipant),
		errors.Is(err, rtc.ErrNotParticipant):
		code = "unauthorized"
	case errors.Is(err, store.ErrNotFound):
		code = "not_found"
	case errors.Is(err, call.ErrActiveCall):
		code = "conflict"
	case errors.Is(err, call.ErrInvalidTransition):
		code = "invalid_transition"
	case errors.Is(err, chat.ErrDeleted):
		code = "conflict"
	}

	if code == "internal" {
		d.logger.Error("frame handling failed",
			zap.String("type", string(request)), zap.String("conn_id", conn.ID()), zap.Error(err))
	} else {
		d.logger.Debug("frame rejected",
			zap.String("type", string(request)), zap.String("code", code),
			zap.String("conn_id", conn.ID()), zap.Error(err))
	}

	payload, merr := json.Marshal(errorFrame{
		Type:    "error",
		Code:    code,
		Request: string(request),
		Message: err.Error(),
	})
	if merr != nil {
		return
	}
	if serr := conn.Send(payload); serr != nil {
		d.logger.Debug("error frame dropped", zap.String("conn_id", conn.ID()))
	}
}

func isValidationError(err error) bool {
	var verr validator.ValidationErrors
	if errors.As(err, &verr) {
		return true
	}
	var jerr *json.UnmarshalTypeError
	return errors.As(err, &jerr)
}
