package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"limbo/internal/adapter/tool"
	"limbo/internal/domain"
)

const clockSchema = `{
  "type": "object",
  "properties": {
    "timezone": {"type": "string", "description": "IANA zone name such as Europe/Oslo. Defaults to local time."}
  },
  "additionalProperties": false
}`

type clockParams struct {
	Timezone string `json:"timezone"`
}

// Clock provides the "clock" tool, a "clock.now" command and a <clock/>
// markdown element.
type Clock struct {
	now func() time.Time
	api domain.PluginAPI
}

func NewClock() *Clock { return &Clock{now: time.Now} }

func (*Clock) Manifest() domain.PluginManifest {
	return domain.PluginManifest{
		ID:          "clock",
		Name:        "Clock",
		Version:     "1.0.0",
		Description: "Tells the time.",
		Author:      "limbo",
	}
}

func (c *Clock) OnActivate(_ context.Context, api domain.PluginAPI) error {
	c.api = api
	t := tool.NewFunc("clock", "Returns the current date and time.", json.RawMessage(clockSchema),
		func(_ context.Context, _ domain.ToolExecuteArgs, p clockParams) (any, error) {
			return c.format(p.Timezone)
		})
	if err := api.Tools.Register(t); err != nil {
		return err
	}
	err := api.UI.RegisterMarkdownElement(domain.MarkdownElement{
		Element: "clock",
		Render: func(attrs map[string]string, _ string) (string, error) {
			return c.format(attrs["tz"])
		},
	})
	if err != nil {
		return err
	}
	return api.Commands.Register(domain.Command{
		ID:   "clock.now",
		Name: "Show the current time",
		Execute: func(ctx context.Context) error {
			now, err := c.format("")
			if err != nil {
				return err
			}
			api.UI.ShowNotification(ctx, domain.Notification{Level: domain.NotificationInfo, Title: "Current time", Message: now})
			return nil
		},
	})
}

func (c *Clock) format(tz string) (string, error) {
	loc := time.Local
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("%w: unknown timezone %q", domain.ErrInvalidInput, tz)
		}
		loc = l
	}
	return c.now().In(loc).Format(time.RFC1123), nil
}
