package signal

import (
	"errors"
	"fmt"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

var (
	errUnknownEvent = errors.New("unknown event")
	errBadPayload   = errors.New("bad payload")
)

var validate = validator.New()

type envelope struct {
	Type    core.CommandType `json:"type" validate:"required"`
	Payload json.RawMessage  `json:"payload"`
}

type registerPayload struct {
	UserID string `json:"userId" validate:"required"`
}

type peerPayload struct {
	Address string `json:"address" validate:"required"`
}

type directCallPayload struct {
	TargetUserID string `json:"targetUserId" validate:"required,max=64"`
}

type sessionPayload struct {
	SessionID string `json:"sessionId" validate:"required,max=64"`
}

type signalPayload struct {
	Target    string          `json:"target" validate:"required_without=SessionID,max=128"`
	SessionID string          `json:"sessionId" validate:"max=64"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
}

// decodeCommand parses one inbound frame into a command bound to conn.
func decodeCommand(conn core.ConnID, data []byte) (core.Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return core.Command{}, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	if err := validate.Struct(env); err != nil {
		return core.Command{}, fmt.Errorf("%w: missing type", errBadPayload)
	}

	cmd := core.Command{Conn: conn, Type: env.Type}
	switch env.Type {
	case core.CmdRegister:
		var p registerPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return cmd, err
		}
		id, err := domain.ParseUserID(p.UserID)
		if err != nil {
			return cmd, fmt.Errorf("%w: %v", errBadPayload, err)
		}
		cmd.UserID = id

	case core.CmdRegisterPeer:
		var p peerPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return cmd, err
		}
		addr, err := domain.ParseAddress(p.Address)
		if err != nil {
			return cmd, fmt.Errorf("%w: %v", errBadPayload, err)
		}
		cmd.Address = addr

	case core.CmdRequestDirectCall:
		var p directCallPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return cmd, err
		}
		target, err := domain.ParseUserID(p.TargetUserID)
		if err != nil {
			return cmd, fmt.Errorf("%w: %v", errBadPayload, err)
		}
		cmd.TargetID = target

	case core.CmdAcceptCall, core.CmdRejectCall, core.CmdJoinGroupCall, core.CmdLeaveCall:
		var p sessionPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return cmd, err
		}
		cmd.SessionID = domain.SessionID(p.SessionID)

	case core.CmdSignal:
		var p signalPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return cmd, err
		}
		cmd.Target = p.Target
		cmd.SessionID = domain.SessionID(p.SessionID)
		cmd.Payload = []byte(p.Payload)

	case core.CmdRequestRandomCall, core.CmdCreateGroupCall, core.CmdPing:

	default:
		return cmd, fmt.Errorf("%w: %q", errUnknownEvent, env.Type)
	}
	return cmd, nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %s", errBadPayload, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return nil
}
