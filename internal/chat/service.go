// Package chat implements the message handlers: registration, login/logout,
// one-to-one and group chat routing, friend and group management, and the
// disconnect hook the transport calls on abrupt close.
package chat

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/mascotdog/ChatServer/internal/models"
	"github.com/mascotdog/ChatServer/internal/presence"
	"github.com/mascotdog/ChatServer/internal/store"
	"github.com/mascotdog/ChatServer/internal/wire"
	"golang.org/x/crypto/bcrypt"
)

// Handler processes one decoded inbound frame. Responses, if any, are sent on
// conn or pushed to other users' connections as a side effect.
type Handler func(conn presence.Conn, raw []byte, receivedAt time.Time)

// Options tune service behavior.
type Options struct {
	// GroupEcho controls whether group chat fan-out includes the sender.
	GroupEcho bool
}

type Service struct {
	store     store.Store
	registry  *presence.Registry
	handlers  map[wire.MsgID]Handler
	groupEcho bool
}

func NewService(st store.Store, reg *presence.Registry, opts Options) *Service {
	s := &Service{
		store:     st,
		registry:  reg,
		groupEcho: opts.GroupEcho,
	}
	// Built once; read-only afterwards, so Resolve needs no locking.
	s.handlers = map[wire.MsgID]Handler{
		wire.MsgLogin:       s.handleLogin,
		wire.MsgLogout:      s.handleLogout,
		wire.MsgRegister:    s.handleRegister,
		wire.MsgOneChat:     s.handleOneChat,
		wire.MsgAddFriend:   s.handleAddFriend,
		wire.MsgCreateGroup: s.handleCreateGroup,
		wire.MsgAddGroup:    s.handleAddGroup,
		wire.MsgGroupChat:   s.handleGroupChat,
	}
	return s
}

// Registry exposes the presence registry, mainly for diagnostics endpoints.
func (s *Service) Registry() *presence.Registry {
	return s.registry
}

// Resolve returns the handler registered for id. Unregistered tags get a
// fallback that logs and does nothing else; the connection stays up.
func (s *Service) Resolve(id wire.MsgID) Handler {
	if h, ok := s.handlers[id]; ok {
		return h
	}
	return func(presence.Conn, []byte, time.Time) {
		log.Printf("chat: no handler registered for msgid %d", id)
	}
}

// HandleRequest decodes the frame's tag and dispatches it. Called by the
// transport once per inbound message; it never panics back into the
// transport.
func (s *Service) HandleRequest(conn presence.Conn, raw []byte, receivedAt time.Time) {
	id, err := wire.PeekMsgID(raw)
	if err != nil {
		log.Printf("chat: dropping undecodable frame: %v", err)
		return
	}
	s.Resolve(id)(conn, raw, receivedAt)
}

// HandleDisconnect reconciles state after a connection closes without a
// logout. If the connection owned a binding, that user's persisted presence
// is forced offline. Connections that never logged in cause no state change.
func (s *Service) HandleDisconnect(conn presence.Conn) {
	userID, ok := s.registry.UnbindConn(conn)
	if !ok {
		return
	}
	if err := s.store.SetPresence(userID, models.StateOffline); err != nil {
		log.Printf("chat: set presence offline for %d after disconnect: %v", userID, err)
	}
}

// Reset clears all persisted online presence. Called once at startup, before
// the transport accepts connections, so a crash cannot leave users stuck
// online.
func (s *Service) Reset() error {
	return s.store.ResetAllToOffline()
}

func (s *Service) handleRegister(conn presence.Conn, raw []byte, _ time.Time) {
	var req wire.RegisterRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Printf("chat: decode register: %v", err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.send(conn, wire.RegisterAck{MsgID: wire.MsgRegisterAck, Errno: wire.ErrnoFailure, Errmsg: "internal error"})
		return
	}

	id, err := s.store.CreateUser(req.Name, string(hash))
	if err != nil {
		log.Printf("chat: create user %q: %v", req.Name, err)
		s.send(conn, wire.RegisterAck{MsgID: wire.MsgRegisterAck, Errno: wire.ErrnoFailure, Errmsg: "registration failed"})
		return
	}

	s.send(conn, wire.RegisterAck{MsgID: wire.MsgRegisterAck, Errno: wire.ErrnoOK, ID: id})
}

func (s *Service) handleLogin(conn presence.Conn, raw []byte, _ time.Time) {
	var req wire.LoginRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Printf("chat: decode login: %v", err)
		return
	}

	user, err := s.store.GetUserByID(req.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("chat: get user %d: %v", req.ID, err)
		}
		s.send(conn, wire.LoginAck{MsgID: wire.MsgLoginAck, Errno: wire.ErrnoFailure, Errmsg: "invalid id or password"})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		s.send(conn, wire.LoginAck{MsgID: wire.MsgLoginAck, Errno: wire.ErrnoFailure, Errmsg: "invalid id or password"})
		return
	}

	// Duplicate check, bind, and the persisted presence write form one
	// critical section inside the registry. The losing connection of a
	// concurrent login gets ErrAlreadyBound and is left open; the client may
	// retry or disconnect.
	err = s.registry.Bind(user.ID, conn, func() error {
		return s.store.SetPresence(user.ID, models.StateOnline)
	})
	if errors.Is(err, presence.ErrAlreadyBound) {
		s.send(conn, wire.LoginAck{MsgID: wire.MsgLoginAck, Errno: wire.ErrnoAlreadyOnline, Errmsg: "account is already logged in"})
		return
	}
	if err != nil {
		log.Printf("chat: bind user %d: %v", user.ID, err)
		s.send(conn, wire.LoginAck{MsgID: wire.MsgLoginAck, Errno: wire.ErrnoFailure, Errmsg: "login failed"})
		return
	}

	// Read-only enrichment, outside the lock.
	ack := wire.LoginAck{MsgID: wire.MsgLoginAck, Errno: wire.ErrnoOK, ID: user.ID, Name: user.Name}

	queued, err := s.store.DrainOffline(user.ID)
	if err != nil {
		log.Printf("chat: drain offline messages for %d: %v", user.ID, err)
	}
	for _, payload := range queued {
		ack.OfflineMsgs = append(ack.OfflineMsgs, json.RawMessage(payload))
	}

	friends, err := s.store.ListFriends(user.ID)
	if err != nil {
		log.Printf("chat: list friends for %d: %v", user.ID, err)
	}
	ack.Friends = friends

	s.send(conn, ack)
}

// handleLogout is idempotent: a logout for a user with no live binding still
// forces the persisted presence to offline.
func (s *Service) handleLogout(_ presence.Conn, raw []byte, _ time.Time) {
	var req wire.LogoutRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Printf("chat: decode logout: %v", err)
		return
	}

	s.registry.Unbind(req.ID)
	if err := s.store.SetPresence(req.ID, models.StateOffline); err != nil {
		log.Printf("chat: set presence offline for %d: %v", req.ID, err)
	}
}

// handleOneChat relays the frame to the recipient if they are online, and
// queues it for their next login otherwise. The frame travels verbatim so
// the recipient's client can render the sender fields. No ack goes back to
// the sender; delivery is fire-and-forget.
func (s *Service) handleOneChat(_ presence.Conn, raw []byte, _ time.Time) {
	var req wire.ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Printf("chat: decode one-chat: %v", err)
		return
	}

	delivered, err := s.registry.Route(req.ToID, raw, func() error {
		return s.store.EnqueueOffline(req.ToID, raw)
	})
	if err != nil {
		if delivered {
			log.Printf("chat: send to %d failed mid-flight, message lost: %v", req.ToID, err)
		} else {
			log.Printf("chat: enqueue offline message for %d: %v", req.ToID, err)
		}
	}
}

func (s *Service) handleAddFriend(_ presence.Conn, raw []byte, _ time.Time) {
	var req wire.AddFriendRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Printf("chat: decode add-friend: %v", err)
		return
	}

	if err := s.store.AddFriend(req.ID, req.FriendID); err != nil {
		log.Printf("chat: add friend %d -> %d: %v", req.ID, req.FriendID, err)
	}
}

func (s *Service) handleCreateGroup(conn presence.Conn, raw []byte, _ time.Time) {
	var req wire.CreateGroupRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Printf("chat: decode create-group: %v", err)
		return
	}

	groupID, err := s.store.CreateGroup(req.GroupName, req.GroupDesc)
	if err != nil {
		log.Printf("chat: create group %q: %v", req.GroupName, err)
		s.send(conn, wire.CreateGroupAck{MsgID: wire.MsgCreateGroupAck, Errno: wire.ErrnoFailure, Errmsg: "group creation failed"})
		return
	}

	if err := s.store.AddGroupMember(groupID, req.ID, models.RoleCreator); err != nil {
		log.Printf("chat: add creator %d to group %d: %v", req.ID, groupID, err)
		s.send(conn, wire.CreateGroupAck{MsgID: wire.MsgCreateGroupAck, Errno: wire.ErrnoFailure, Errmsg: "group creation failed"})
		return
	}

	s.send(conn, wire.CreateGroupAck{MsgID: wire.MsgCreateGroupAck, Errno: wire.ErrnoOK, GroupID: groupID})
}

func (s *Service) handleAddGroup(_ presence.Conn, raw []byte, _ time.Time) {
	var req wire.AddGroupRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Printf("chat: decode add-group: %v", err)
		return
	}

	if err := s.store.AddGroupMember(req.GroupID, req.ID, models.RoleNormal); err != nil {
		log.Printf("chat: add member %d to group %d: %v", req.ID, req.GroupID, err)
	}
}

// handleGroupChat fans the frame out to every group member, each routed
// live-or-offline independently. One member's failure never blocks the rest.
func (s *Service) handleGroupChat(_ presence.Conn, raw []byte, _ time.Time) {
	var req wire.GroupChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Printf("chat: decode group-chat: %v", err)
		return
	}

	members, err := s.store.ListGroupMemberIDs(req.GroupID)
	if err != nil {
		log.Printf("chat: list members of group %d: %v", req.GroupID, err)
		return
	}

	for _, memberID := range members {
		if memberID == req.ID && !s.groupEcho {
			continue
		}
		target := memberID
		delivered, err := s.registry.Route(target, raw, func() error {
			return s.store.EnqueueOffline(target, raw)
		})
		if err != nil {
			if delivered {
				log.Printf("chat: group %d send to %d failed mid-flight, message lost: %v", req.GroupID, target, err)
			} else {
				log.Printf("chat: group %d enqueue for %d: %v", req.GroupID, target, err)
			}
		}
	}
}

func (s *Service) send(conn presence.Conn, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("chat: marshal response: %v", err)
		return
	}
	if err := conn.Send(payload); err != nil {
		log.Printf("chat: send response: %v", err)
	}
}
