package websocket

import (
	"encoding/json"
	"regexp"

	"github.com/adwski/ghostchat/backend/model"
	"github.com/adwski/ghostchat/backend/service"
)

const (
	minSecretLength = 4
	maxSecretLength = 72
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

func invalid(reason string) error {
	return &service.ValidationError{Reason: reason}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return invalid("malformed payload")
	}
	return nil
}

func validatePrivateRoom(req model.PrivateRoomRequest) error {
	switch {
	case req.RoomID == "" || req.Secret == "":
		return invalid("room id and password are required")
	case !roomIDPattern.MatchString(req.RoomID):
		return invalid("room id must be 1-32 letters, digits, dashes or underscores")
	case len(req.Secret) < minSecretLength:
		return invalid("password must be at least 4 characters")
	case len(req.Secret) > maxSecretLength:
		return invalid("password is too long")
	}
	return nil
}

func validateMessage(req model.SendMessageRequest) error {
	if req.Text == "" {
		return invalid("message text is required")
	}
	return nil
}

// dispatch runs a single request against the room service and builds the reply.
func (srv *Server) dispatch(connID string, req model.Envelope) model.Reply {
	switch req.Type {
	case model.RequestJoinPublic:
		return snapshotReply(srv.svc.JoinPublic(connID))

	case model.RequestCreatePrivate, model.RequestJoinPrivate:
		var p model.PrivateRoomRequest
		if err := decodePayload(req.Payload, &p); err != nil {
			return errorReply(err)
		}
		if err := validatePrivateRoom(p); err != nil {
			return errorReply(err)
		}
		if req.Type == model.RequestCreatePrivate {
			return snapshotReply(srv.svc.CreatePrivate(connID, p.RoomID, p.Secret))
		}
		return snapshotReply(srv.svc.JoinPrivate(connID, p.RoomID, p.Secret))

	case model.RequestSendMessage:
		var p model.SendMessageRequest
		if err := decodePayload(req.Payload, &p); err != nil {
			return errorReply(err)
		}
		if err := validateMessage(p); err != nil {
			return errorReply(err)
		}
		return ackReply(srv.svc.SendMessage(connID, p.Text))

	case model.RequestExitRoom:
		return ackReply(srv.svc.ExitRoom(connID))
	}
	return errorReply(invalid("unknown request type"))
}

func snapshotReply(snap *model.Snapshot, err error) model.Reply {
	if err != nil {
		return errorReply(err)
	}
	return model.Reply{Success: true, Snapshot: snap}
}

func ackReply(err error) model.Reply {
	if err != nil {
		return errorReply(err)
	}
	return model.Reply{Success: true}
}

func errorReply(err error) model.Reply {
	return model.Reply{Error: service.PublicMessage(err)}
}
