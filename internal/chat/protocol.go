package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Fixed protocol lines.
const (
	PromptNick       = "NICK: Enter your nickname: "
	ReplyNickTaken   = "ERROR: Nickname already in use."
	ReplyBadNick     = "ERROR: Invalid nickname."
	ReplyLineTooLong = "ERROR: Line too long."
	ReplyServerFull  = "ERROR: Server is full."
	ReplyGoodbye     = "INFO: Goodbye!"
	ReplyNoRooms     = "INFO: No rooms available."
	ReplyNotInRooms  = "INFO: You are not in any rooms."
	NoticeShutdown   = "SERVER: Server is shutting down."
)

type commandHelp struct {
	usage string
	desc  string
}

// helpTopics is ordered as shown by HELP; usage strings double as the
// text of "ERROR: Usage:" replies.
var helpTopics = []commandHelp{
	{"CREATE <room>", "Create a new room"},
	{"JOIN <room>", "Join an existing room"},
	{"LEAVE <room>", "Leave a room"},
	{"LIST", "List all rooms"},
	{"WHO <room>", "List members in a room"},
	{"MSG <room> <text>", "Send a message to a room"},
	{"ROOMS", "List the rooms you are in"},
	{"HELP", "Show this help"},
	{"QUIT", "Disconnect"},
}

func welcomeLine(nick string) string {
	return fmt.Sprintf("Welcome: Hello %s! Type HELP for commands.", nick)
}

func joinedNotice(nick, room string) string {
	return fmt.Sprintf("NOTIFICATION: %s has joined the room '%s'.", nick, room)
}

func leftNotice(nick, room string) string {
	return fmt.Sprintf("NOTIFICATION: %s has left the room '%s'.", nick, room)
}

func disconnectedNotice(nick string) string {
	return fmt.Sprintf("NOTIFICATION: %s disconnected.", nick)
}

func roomMessage(room, nick, text string) string {
	return fmt.Sprintf("[%s] %s: %s", room, nick, text)
}

func messageSentLine(room, text string) string {
	return fmt.Sprintf("MESSAGE_SENT: [%s] %s", room, text)
}

func usageLine(command string) string {
	for _, h := range helpTopics {
		if strings.HasPrefix(h.usage, command) {
			return "ERROR: Usage: " + h.usage
		}
	}
	return "ERROR: Usage: " + command
}

func roomListLines(rooms []RoomInfo) []string {
	if len(rooms) == 0 {
		return []string{ReplyNoRooms}
	}
	return append([]string{"ROOMS:"}, lo.Map(rooms, func(r RoomInfo, _ int) string {
		return fmt.Sprintf(" - %s (%d members)", r.Name, r.Members)
	})...)
}

func memberListLines(room string, nicks []string) []string {
	if len(nicks) == 0 {
		return []string{fmt.Sprintf("INFO: Room '%s' has no members.", room)}
	}
	return append([]string{fmt.Sprintf("Members in room '%s':", room)}, lo.Map(nicks, func(n string, _ int) string {
		return " - " + n
	})...)
}

func helpLines() []string {
	return append([]string{"INFO: Available commands:"}, lo.Map(helpTopics, func(h commandHelp, _ int) string {
		return fmt.Sprintf("  %-20s - %s", h.usage, h.desc)
	})...)
}

// errorReply renders a protocol error for the client. subject is the room,
// nickname or command the error is about.
func errorReply(err error, subject string) string {
	switch {
	case errors.Is(err, ErrNicknameTaken):
		return ReplyNickTaken
	case errors.Is(err, ErrInvalidNickname):
		return ReplyBadNick
	case errors.Is(err, ErrUnknownCommand):
		return fmt.Sprintf("ERROR: unknown command '%s'. Type HELP for commands.", subject)
	case errors.Is(err, ErrMalformedArguments):
		return usageLine(subject)
	case errors.Is(err, ErrRoomExists):
		return fmt.Sprintf("ERROR: Room '%s' already exists.", subject)
	case errors.Is(err, ErrRoomNotFound):
		return fmt.Sprintf("ERROR: Room '%s' does not exist.", subject)
	case errors.Is(err, ErrNotAMember):
		return fmt.Sprintf("ERROR: You are not a member of room '%s'.", subject)
	case errors.Is(err, ErrInvalidRoomName):
		return "ERROR: Invalid room name."
	default:
		return "ERROR: " + err.Error()
	}
}
