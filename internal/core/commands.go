package core

import (
	"encoding/json"

	"github.com/dkeye/Meet/internal/domain"
)

type CommandType string

// Client to server events.
const (
	CmdRegister          CommandType = "register"
	CmdRegisterPeer      CommandType = "register-peer"
	CmdRequestRandomCall CommandType = "requestRandomCall"
	CmdRequestDirectCall CommandType = "requestDirectCall"
	CmdAcceptCall        CommandType = "acceptCall"
	CmdRejectCall        CommandType = "rejectCall"
	CmdCreateGroupCall   CommandType = "createGroupCall"
	CmdJoinGroupCall     CommandType = "joinGroupCall"
	CmdLeaveCall         CommandType = "leaveCall"
	CmdSignal            CommandType = "signal"
	CmdPing              CommandType = "ping"
)

// Command is a decoded, validated client event bound to the connection it came from.
// Only the fields relevant to Type are set.
type Command struct {
	Conn ConnID
	Type CommandType

	UserID    domain.UserID
	Address   domain.TransportAddress
	TargetID  domain.UserID
	SessionID domain.SessionID

	// Target of a signal: a transport address or a user id.
	Target  string
	Payload json.RawMessage
}
