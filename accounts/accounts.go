// Package accounts reads the local user list from AccountsService
// (org.freedesktop.Accounts) over the system bus.
package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"os/user"

	"github.com/godbus/dbus/v5"

	"go-fprint-manager/models"
)

const (
	busName           = "org.freedesktop.Accounts"
	accountsPath      = dbus.ObjectPath("/org/freedesktop/Accounts")
	accountsInterface = "org.freedesktop.Accounts"
	userInterface     = "org.freedesktop.Accounts.User"
)

// Client wraps the AccountsService daemon.
type Client struct {
	conn *dbus.Conn
}

func NewClient(conn *dbus.Conn) *Client {
	return &Client{conn: conn}
}

// ListUsers returns every cached local user. When AccountsService is
// unavailable or reports nobody, the current process user is returned
// instead so there is always someone to enroll for.
func (c *Client) ListUsers(ctx context.Context) ([]models.UserOption, error) {
	paths, err := c.listCachedUsers(ctx)
	if err != nil {
		slog.Warn("accounts service unavailable, falling back to current user", "error", err)
		return fallbackUsers()
	}

	users := make([]models.UserOption, 0, len(paths))
	for _, path := range paths {
		option, err := c.readUser(path)
		if err != nil {
			slog.Warn("skipping unreadable user object", "path", path, "error", err)
			continue
		}
		users = append(users, option)
	}

	if len(users) == 0 {
		return fallbackUsers()
	}
	return users, nil
}

// FindUserByName resolves one username through AccountsService.
func (c *Client) FindUserByName(ctx context.Context, name string) (models.UserOption, error) {
	obj := c.conn.Object(busName, accountsPath)
	var path dbus.ObjectPath
	err := obj.CallWithContext(ctx, accountsInterface+".FindUserByName", 0, name).Store(&path)
	if err != nil {
		return models.UserOption{}, fmt.Errorf("find user %q: %w", name, err)
	}
	return c.readUser(path)
}

func (c *Client) listCachedUsers(ctx context.Context) ([]dbus.ObjectPath, error) {
	obj := c.conn.Object(busName, accountsPath)
	var paths []dbus.ObjectPath
	err := obj.CallWithContext(ctx, accountsInterface+".ListCachedUsers", 0).Store(&paths)
	if err != nil {
		return nil, fmt.Errorf("list cached users: %w", err)
	}
	return paths, nil
}

func (c *Client) readUser(path dbus.ObjectPath) (models.UserOption, error) {
	obj := c.conn.Object(busName, path)

	username, err := stringProperty(obj, userInterface+".UserName")
	if err != nil {
		return models.UserOption{}, err
	}
	realName, err := stringProperty(obj, userInterface+".RealName")
	if err != nil {
		return models.UserOption{}, err
	}
	return models.UserOption{Username: username, RealName: realName}, nil
}

func stringProperty(obj dbus.BusObject, name string) (string, error) {
	variant, err := obj.GetProperty(name)
	if err != nil {
		return "", fmt.Errorf("get property %s: %w", name, err)
	}
	var value string
	if err := variant.Store(&value); err != nil {
		return "", fmt.Errorf("property %s: %w", name, err)
	}
	return value, nil
}

func fallbackUsers() ([]models.UserOption, error) {
	current, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("no users available: %w", err)
	}
	return []models.UserOption{{Username: current.Username, RealName: current.Name}}, nil
}
