// Package room computes the broadcast room token for a conversation.
//
// A direct conversation between two users maps to "chat_<low>_<high>", so
// both participants derive the same token without coordination. A group
// conversation maps to "group_<id>".
package room

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shubham07069/chatgod/internal/apperr"
)

const (
	directPrefix = "chat_"
	groupPrefix  = "group_"
)

var ErrInvalidAddress = fmt.Errorf("%w: conversation needs a receiver or a group", apperr.ErrValidation)

// Address is a parsed room token.
type Address struct {
	GroupID int
	// Users holds the two participants of a direct room, lowest id first.
	Users [2]int
}

func (a Address) IsGroup() bool { return a.GroupID != 0 }

// Includes reports whether userID is a participant of a direct room.
func (a Address) Includes(userID int) bool {
	return !a.IsGroup() && (a.Users[0] == userID || a.Users[1] == userID)
}

// For returns the room token for a message from senderID. A group id takes
// precedence over a receiver id.
func For(senderID int, receiverID, groupID *int) (string, error) {
	if groupID != nil {
		return Group(*groupID), nil
	}
	if receiverID != nil {
		return Direct(senderID, *receiverID), nil
	}
	return "", ErrInvalidAddress
}

func Direct(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return directPrefix + strconv.Itoa(a) + "_" + strconv.Itoa(b)
}

func Group(id int) string {
	return groupPrefix + strconv.Itoa(id)
}

func Parse(token string) (Address, error) {
	switch {
	case strings.HasPrefix(token, groupPrefix):
		id, err := strconv.Atoi(strings.TrimPrefix(token, groupPrefix))
		if err != nil || id <= 0 {
			return Address{}, apperr.Validationf("invalid room %q", token)
		}
		return Address{GroupID: id}, nil
	case strings.HasPrefix(token, directPrefix):
		parts := strings.Split(strings.TrimPrefix(token, directPrefix), "_")
		if len(parts) != 2 {
			return Address{}, apperr.Validationf("invalid room %q", token)
		}
		a, errA := strconv.Atoi(parts[0])
		b, errB := strconv.Atoi(parts[1])
		if errA != nil || errB != nil || a <= 0 || b <= 0 || a > b {
			return Address{}, apperr.Validationf("invalid room %q", token)
		}
		return Address{Users: [2]int{a, b}}, nil
	}
	return Address{}, apperr.Validationf("invalid room %q", token)
}
