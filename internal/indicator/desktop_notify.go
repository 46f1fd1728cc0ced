package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = "/org/freedesktop/Notifications"
	notifyIface = "org.freedesktop.Notifications"
)

// urgency is the freedesktop "urgency" hint byte.
type urgency byte

const (
	urgencyLow      urgency = 0
	urgencyNormal   urgency = 1
	urgencyCritical urgency = 2
)

// notification is one Notify call. ReplaceID 0 asks the server for a new ID.
type notification struct {
	AppName   string
	ReplaceID uint32
	Summary   string
	Body      string
	TimeoutMS int
	Urgency   urgency
}

// args renders the Notify call for busctl: app, replace id, icon, summary, body,
// no actions, one urgency hint, and the expiry timeout.
func (n notification) args() []string {
	return []string{
		"Notify", "susssasa{sv}i",
		n.AppName,
		strconv.FormatUint(uint64(n.ReplaceID), 10),
		"",
		n.Summary,
		n.Body,
		"0",
		"1", "urgency", "y", strconv.Itoa(int(n.Urgency)),
		strconv.Itoa(n.TimeoutMS),
	}
}

// desktopNotify sends n over the session bus and returns the ID the server assigned.
func desktopNotify(ctx context.Context, n notification) (uint32, error) {
	out, err := busctl(ctx, n.args()...)
	if err != nil {
		return 0, fmt.Errorf("desktop notify: %w", err)
	}

	fields := strings.Fields(out)
	if len(fields) < 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify: unexpected reply %q", out)
	}
	id, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("desktop notify: parse id %q: %w", fields[1], err)
	}
	return uint32(id), nil
}

// desktopDismiss closes notification id.
func desktopDismiss(ctx context.Context, id uint32) error {
	if _, err := busctl(ctx, "CloseNotification", "u", strconv.FormatUint(uint64(id), 10)); err != nil {
		return fmt.Errorf("desktop dismiss: %w", err)
	}
	return nil
}

// busctl calls a method on the notification service and returns trimmed output.
func busctl(ctx context.Context, call ...string) (string, error) {
	args := append([]string{"--user", "call", notifyDest, notifyPath, notifyIface}, call...)
	raw, err := exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
	out := strings.TrimSpace(string(raw))
	if err != nil {
		if out == "" {
			return "", err
		}
		return "", fmt.Errorf("%w (%s)", err, out)
	}
	return out, nil
}
