package models

import (
	"time"

	"github.com/google/uuid"
)

// Sex codes stored on the user profile.
const (
	SexMale   = "M"
	SexFemale = "F"
	SexSecret = "X"
)

// Request states for friendship and membership requests.
const (
	StatePending  = "P"
	StateAccepted = "A"
	StateRejected = "R"
)

// Update events mirror the lifecycle of the model they describe.
const (
	EventCreate = "create"
	EventUpdate = "update"
	EventDelete = "delete"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Bio       string    `json:"bio"`
	Sex       string    `json:"sex"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAuth carries the credential columns needed by login and password
// changes. Never serialized.
type UserAuth struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
}

type Chatroom struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	CreatorID           uuid.UUID `json:"creator_id"`
	FriendshipExclusive bool      `json:"friendship_exclusive"`
	CreatedAt           time.Time `json:"created_at"`
}

// Membership levels. The creator outranks plain managers, managers outrank
// members. Moderation actions require a strictly greater level.
const (
	LevelMember  = 0
	LevelManager = 1
	LevelCreator = 2
)

type ChatroomMembership struct {
	ID         uuid.UUID   `json:"id"`
	UserID     uuid.UUID   `json:"user_id"`
	ChatroomID uuid.UUID   `json:"chatroom_id"`
	IsManager  bool        `json:"is_manager"`
	Level      int         `json:"level"`
	LastRead   time.Time   `json:"last_read"`
	GroupIDs   []uuid.UUID `json:"group_ids"`
	CreatedAt  time.Time   `json:"created_at"`

	// Exclusive is the room's friendship_exclusive flag, joined in for
	// policy checks.
	Exclusive bool `json:"-"`
}

type MembershipGroup struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
}

type MembershipRequest struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	ChatroomID uuid.UUID `json:"chatroom_id"`
	Message    string    `json:"message"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
}

type FriendshipGroup struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
}

type Friendship struct {
	ID         uuid.UUID   `json:"id"`
	UserID     uuid.UUID   `json:"user_id"`
	TargetID   uuid.UUID   `json:"target_id"`
	Nickname   *string     `json:"nickname"`
	Important  bool        `json:"important"`
	ChatroomID uuid.UUID   `json:"chatroom_id"`
	GroupIDs   []uuid.UUID `json:"group_ids"`
}

type FriendshipRequest struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	TargetID  uuid.UUID `json:"target_id"`
	Message   string    `json:"message"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID                 int64     `json:"id"`
	ChatroomID         uuid.UUID `json:"chatroom_id"`
	SenderMembershipID uuid.UUID `json:"sender_membership_id"`
	SenderID           uuid.UUID `json:"sender_id"`
	Text               string    `json:"text"`
	CreatedAt          time.Time `json:"created_at"`
}

// Update is one entry of the realtime feed: which model changed, its id
// (uuid string, or decimal for messages) and the lifecycle event.
type Update struct {
	Model string `json:"model"`
	ID    string `json:"id"`
	Event string `json:"event"`
}

// UserPage is a page of the user directory.
type UserPage struct {
	Items    []User `json:"items"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Total    int    `json:"total"`
}
