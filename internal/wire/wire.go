// Package wire defines the message-type tags and JSON envelopes exchanged
// with clients. Every frame carries a "msgid" field; the remaining fields
// depend on the message type. Chat payloads are kept as raw bytes so they can
// be relayed to recipients unmodified.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/mascotdog/ChatServer/internal/models"
)

// MsgID tags every request and response frame.
type MsgID int

const (
	MsgLogin          MsgID = 1
	MsgLoginAck       MsgID = 2
	MsgLogout         MsgID = 3
	MsgRegister       MsgID = 4
	MsgRegisterAck    MsgID = 5
	MsgOneChat        MsgID = 6
	MsgAddFriend      MsgID = 7
	MsgCreateGroup    MsgID = 8
	MsgCreateGroupAck MsgID = 9
	MsgAddGroup       MsgID = 10
	MsgGroupChat      MsgID = 11
)

// Error codes carried in ack frames.
const (
	ErrnoOK            = 0
	ErrnoFailure       = 1
	ErrnoAlreadyOnline = 2
)

// Envelope is the minimal view of any frame, used to resolve a handler
// before the type-specific decode.
type Envelope struct {
	MsgID MsgID `json:"msgid"`
}

// PeekMsgID extracts the message-type tag without decoding the full frame.
func PeekMsgID(raw []byte) (MsgID, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return 0, fmt.Errorf("wire: decode envelope: %w", err)
	}
	return env.MsgID, nil
}

type LoginRequest struct {
	ID       int64  `json:"id"`
	Password string `json:"password"`
}

type LogoutRequest struct {
	ID int64 `json:"id"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// ChatRequest covers the routing fields of a one-to-one chat frame. The full
// frame, including whatever fields the sending client added, is forwarded
// verbatim; only ToID is consumed server-side.
type ChatRequest struct {
	ID   int64 `json:"id"`
	ToID int64 `json:"toid"`
}

type AddFriendRequest struct {
	ID       int64 `json:"id"`
	FriendID int64 `json:"friendid"`
}

type CreateGroupRequest struct {
	ID        int64  `json:"id"`
	GroupName string `json:"groupname"`
	GroupDesc string `json:"groupdesc"`
}

type AddGroupRequest struct {
	ID      int64 `json:"id"`
	GroupID int64 `json:"groupid"`
}

type GroupChatRequest struct {
	ID      int64 `json:"id"`
	GroupID int64 `json:"groupid"`
}

// LoginAck reports the outcome of a login attempt. On success it carries the
// user's identity, any messages queued while they were offline (verbatim chat
// frames, in arrival order) and their friend list with presence.
type LoginAck struct {
	MsgID       MsgID                `json:"msgid"`
	Errno       int                  `json:"errno"`
	Errmsg      string               `json:"errmsg,omitempty"`
	ID          int64                `json:"id,omitempty"`
	Name        string               `json:"name,omitempty"`
	OfflineMsgs []json.RawMessage    `json:"offlinemsg,omitempty"`
	Friends     []models.UserSummary `json:"friends,omitempty"`
}

type RegisterAck struct {
	MsgID  MsgID  `json:"msgid"`
	Errno  int    `json:"errno"`
	Errmsg string `json:"errmsg,omitempty"`
	ID     int64  `json:"id,omitempty"`
}

type CreateGroupAck struct {
	MsgID   MsgID  `json:"msgid"`
	Errno   int    `json:"errno"`
	Errmsg  string `json:"errmsg,omitempty"`
	GroupID int64  `json:"groupid,omitempty"`
}
