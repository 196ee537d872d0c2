package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nfrund/livedash/internal/domain"
)

var errUnknownCommand = errors.New("unknown command")

// actions are the shell operations the watch console can run.
type actions interface {
	OpenChat(ctx context.Context, counterpart string) error
	CloseChat(counterpart string)
	SendMessage(ctx context.Context, counterpart, text string) error
	ClearNotifications(ctx context.Context)
	Broadcast(ctx context.Context, text string) error
	SendFriendRequest(ctx context.Context, target string) error
	AcceptFriend(ctx context.Context, requester string) error
	RemoveFriend(ctx context.Context, tag string) error
	Friends(ctx context.Context) ([]string, error)
	Login(ctx context.Context, username, password string) (domain.Identity, error)
	Logout(ctx context.Context) error
}

const consoleHelp = `open <who> | close <who> | msg <who> <text> | clear | broadcast <text>
friend <who> | accept <who> | unfriend <who> | friends | login <user> <password> | logout`

// runLine executes one console line and returns the status to show.
func runLine(ctx context.Context, a actions, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	name, args := fields[0], fields[1:]

	need := func(n int, usage string) error {
		if len(args) < n {
			return fmt.Errorf("usage: %s", usage)
		}
		return nil
	}

	switch name {
	case "help", "?":
		return consoleHelp, nil
	case "open":
		if err := need(1, "open <who>"); err != nil {
			return "", err
		}
		return "Opened chat with @" + args[0], a.OpenChat(ctx, args[0])
	case "close":
		if err := need(1, "close <who>"); err != nil {
			return "", err
		}
		a.CloseChat(args[0])
		return "Closed chat with @" + args[0], nil
	case "msg":
		if err := need(2, "msg <who> <text>"); err != nil {
			return "", err
		}
		return "Sent to @" + args[0], a.SendMessage(ctx, args[0], strings.Join(args[1:], " "))
	case "clear":
		a.ClearNotifications(ctx)
		return "Notifications cleared", nil
	case "broadcast":
		if err := need(1, "broadcast <text>"); err != nil {
			return "", err
		}
		return "Broadcast sent", a.Broadcast(ctx, strings.Join(args, " "))
	case "friend":
		if err := need(1, "friend <who>"); err != nil {
			return "", err
		}
		return "Friend request sent to @" + args[0], a.SendFriendRequest(ctx, args[0])
	case "accept":
		if err := need(1, "accept <who>"); err != nil {
			return "", err
		}
		return "Accepted @" + args[0], a.AcceptFriend(ctx, args[0])
	case "unfriend":
		if err := need(1, "unfriend <who>"); err != nil {
			return "", err
		}
		return "Removed @" + args[0], a.RemoveFriend(ctx, args[0])
	case "friends":
		friends, err := a.Friends(ctx)
		if err != nil {
			return "", err
		}
		if len(friends) == 0 {
			return "No friends yet", nil
		}
		return "Friends: @" + strings.Join(friends, ", @"), nil
	case "login":
		if err := need(2, "login <user> <password>"); err != nil {
			return "", err
		}
		id, err := a.Login(ctx, args[0], args[1])
		if err != nil {
			return "", err
		}
		return "Logged in as @" + id.Key, nil
	case "logout":
		return "Logged out", a.Logout(ctx)
	}
	return "", fmt.Errorf("%w %q, type help", errUnknownCommand, name)
}
