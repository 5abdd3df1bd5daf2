package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"limbo/internal/adapter/render"
	"limbo/internal/adapter/ui"
	"limbo/internal/domain"
)

// turnSettle bounds how long the console waits for a generation's trailing
// events after SendText returned.
const turnSettle = 2 * time.Second

var errQuit = errors.New("quit")

// console is the interactive frontend: it reads lines, runs slash commands
// and streams generations of the open chat.
type console struct {
	h      *host
	render *render.Renderer
	in     *bufio.Scanner

	mu      sync.Mutex // guards out and midLine
	out     io.Writer
	midLine bool

	chatID      string
	llmID       string
	unsubscribe func()
	turnDone    chan struct{}
}

func newConsole(in io.Reader, out io.Writer, r *render.Renderer) *console {
	return &console{
		render:   r,
		in:       bufio.NewScanner(in),
		out:      out,
		turnDone: make(chan struct{}, 1),
	}
}

// attach wires the console to a running host: confirm dialogs, notifications
// and chat panels.
func (c *console) attach(h *host) func() {
	c.h = h
	c.llmID = h.cfg.Host.DefaultLLM
	h.ui.SetConfirmer(ui.ConfirmerFunc(c.confirm))
	unsubs := []func(){
		h.bus.SubscribeOrdered(domain.EventNotificationShown, c.onNotification),
		h.bus.SubscribeOrdered(domain.EventChatPanelShown, c.onPanel),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
	}
}

// promptAuthorization is the auth.AuthorizationPrompter of the console.
func (c *console) promptAuthorization(_ context.Context, authURL string) error {
	c.println(c.render.Notification(domain.Notification{
		Level:   domain.NotificationInfo,
		Title:   "Sign-in required",
		Message: "open this URL in your browser:",
	}))
	c.println("  " + authURL)
	return nil
}

func (c *console) confirm(_ context.Context, opts domain.ConfirmDialogOptions) (bool, error) {
	c.println(opts.Title)
	if opts.Description != "" {
		c.println(opts.Description)
	}
	c.print("[y/N] ")
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return false, err
		}
		return false, io.EOF
	}
	answer := strings.ToLower(strings.TrimSpace(c.in.Text()))
	return answer == "y" || answer == "yes", nil
}

// Run reads lines until EOF or /quit.
func (c *console) Run(ctx context.Context) error {
	c.println("limbo: type a message, or /help for commands.")
	for {
		c.print(c.promptLabel())
		if !c.in.Scan() {
			c.println("")
			return c.in.Err()
		}
		line := strings.TrimSpace(c.in.Text())
		if line == "" {
			continue
		}
		err := c.handle(ctx, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			c.showError(err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *console) promptLabel() string {
	if c.chatID == "" {
		return "> "
	}
	return fmt.Sprintf("[%s] > ", c.chatID[len(c.chatID)-6:])
}

func (c *console) handle(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, "/") {
		return c.send(ctx, line)
	}
	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "help":
		c.println(helpText)
		return nil
	case "quit", "exit":
		return errQuit
	case "new":
		chat, err := c.h.chats.CreateChat(ctx, rest)
		if err != nil {
			return err
		}
		c.open(chat.ID)
		c.println("created chat " + chat.ID)
		return nil
	case "chats":
		return c.listChats(ctx)
	case "open":
		chat, err := c.h.store.Chats().Get(ctx, rest)
		if err != nil {
			return err
		}
		if chat == nil {
			return domain.NewDomainError("open", domain.ErrChatNotFound, rest)
		}
		c.open(chat.ID)
		return c.history(ctx, 10)
	case "rename":
		if c.chatID == "" {
			return errNoChat
		}
		return c.h.store.Chats().Rename(ctx, c.chatID, rest)
	case "delete":
		ids := strings.Fields(rest)
		if len(ids) == 0 && c.chatID != "" {
			ids = []string{c.chatID}
		}
		var err error
		if len(ids) == 1 {
			err = c.h.chats.DeleteChat(ctx, ids[0])
		} else {
			err = c.h.chats.DeleteChats(ctx, ids)
		}
		if err != nil {
			return err
		}
		for _, id := range ids {
			if id == c.chatID {
				c.open("")
			}
		}
		return nil
	case "history":
		n := 10
		if rest != "" {
			v, err := strconv.Atoi(rest)
			if err != nil {
				return fmt.Errorf("%w: history takes a number", domain.ErrInvalidInput)
			}
			n = v
		}
		return c.history(ctx, n)
	case "llms":
		return c.listLLMs()
	case "use":
		if _, ok := c.h.models.GetLLM(rest); !ok {
			return domain.NewSubSystemError("models", "use", domain.ErrLLMNotFound, rest)
		}
		c.llmID = rest
		return nil
	case "tools":
		return c.table("TOOL\tDESCRIPTION", func(w io.Writer) {
			for _, t := range c.h.tools.List() {
				fmt.Fprintf(w, "%s\t%s\n", t.ID(), t.Description())
			}
		})
	case "plugins":
		return c.table("PLUGIN\tVERSION\tPERMISSIONS\tDESCRIPTION", func(w io.Writer) {
			for _, m := range c.h.manager.List() {
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", m.ID, m.Version, m.Permissions, m.Description)
			}
		})
	case "settings":
		return c.listSettings(ctx)
	case "set":
		key, raw, _ := strings.Cut(rest, " ")
		pluginID, settingID, ok := strings.Cut(key, ".")
		if !ok {
			return fmt.Errorf("%w: usage: /set <plugin>.<setting> <value>", domain.ErrInvalidInput)
		}
		return c.h.settings.Set(ctx, pluginID, settingID, parseValue(strings.TrimSpace(raw)))
	case "reset":
		pluginID, settingID, ok := strings.Cut(rest, ".")
		if !ok {
			return fmt.Errorf("%w: usage: /reset <plugin>.<setting>", domain.ErrInvalidInput)
		}
		return c.h.settings.Reset(ctx, pluginID, settingID)
	case "commands":
		return c.table("COMMAND\tNAME", func(w io.Writer) {
			for _, cmd := range c.h.commands.List() {
				fmt.Fprintf(w, "%s\t%s\n", cmd.ID, cmd.Name)
			}
		})
	case "run":
		return c.h.commands.Execute(domain.ContextWithChatID(ctx, c.chatID), rest)
	default:
		return fmt.Errorf("%w: unknown command /%s", domain.ErrInvalidInput, name)
	}
}

var errNoChat = fmt.Errorf("%w: no open chat, use /new or /open", domain.ErrInvalidInput)

// send runs one generation, creating a chat first when none is open.
func (c *console) send(ctx context.Context, text string) error {
	if c.chatID == "" {
		chat, err := c.h.chats.CreateChat(ctx, "")
		if err != nil {
			return err
		}
		c.open(chat.ID)
	}
	drain(c.turnDone)
	c.println(c.render.RoleLabel(domain.RoleAssistant))

	gen, err := c.h.chats.SendText(ctx, c.chatID, c.llmID, text)
	if gen != nil {
		select {
		case <-c.turnDone:
		case <-time.After(turnSettle):
		}
		c.renderRest(gen.AssistantMessage.Nodes())
	}
	c.endLine()
	return err
}

// renderRest prints the nodes that were not streamed as text or tool events.
func (c *console) renderRest(nodes []domain.ContentNode) {
	for _, n := range nodes {
		switch n.(type) {
		case domain.TextNode, domain.ToolCallNode:
			continue
		}
		c.endLine()
		c.println(strings.TrimRight(c.render.Node(n), "\n"))
	}
}

func (c *console) open(chatID string) {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.chatID = chatID
	if chatID != "" {
		c.unsubscribe = c.h.bus.SubscribeChat(chatID, c.onChatEvent)
	}
}

func (c *console) onChatEvent(_ context.Context, ev domain.Event) {
	switch ev.Type {
	case domain.EventTextDelta:
		var p domain.TextDeltaPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			c.mu.Lock()
			fmt.Fprint(c.out, p.Text)
			c.midLine = !strings.HasSuffix(p.Text, "\n")
			c.mu.Unlock()
		}
	case domain.EventToolCallPending, domain.EventToolCallSettled:
		var p domain.ToolCallPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			c.endLine()
			c.println(c.render.ToolCall(toolCallFromPayload(p)))
		}
	case domain.EventGenerationCompleted, domain.EventGenerationAborted:
		select {
		case c.turnDone <- struct{}{}:
		default:
		}
	}
}

func (c *console) onNotification(_ context.Context, ev domain.Event) {
	var p domain.NotificationPayload
	if json.Unmarshal(ev.Payload, &p) == nil {
		c.endLine()
		c.println(c.render.Notification(p.Notification))
	}
}

func (c *console) onPanel(_ context.Context, ev domain.Event) {
	var p domain.ChatPanelPayload
	if json.Unmarshal(ev.Payload, &p) == nil {
		c.endLine()
		c.println(c.render.Panel(p))
	}
}

func (c *console) history(ctx context.Context, n int) error {
	if c.chatID == "" {
		return errNoChat
	}
	msgs, err := c.h.store.Chats().GetMessages(ctx, domain.GetMessagesOptions{ChatID: c.chatID, Limit: n})
	if err != nil {
		return err
	}
	// Newest first from the store; print oldest first.
	for i := len(msgs) - 1; i >= 0; i-- {
		c.println(strings.TrimRight(c.render.Message(msgs[i]), "\n"))
	}
	return nil
}

func (c *console) listChats(ctx context.Context) error {
	chats, err := c.h.store.Chats().List(ctx)
	if err != nil {
		return err
	}
	return c.table("ID\tNAME\tCREATED", func(w io.Writer) {
		for _, ch := range chats {
			marker := ""
			if ch.ID == c.chatID {
				marker = " *"
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\n", ch.ID, marker, ch.Name, ch.CreatedAt.Local().Format(time.DateTime))
		}
	})
}

func (c *console) listLLMs() error {
	return c.table("LLM\tNAME\tCAPABILITIES", func(w io.Writer) {
		for _, l := range c.h.models.List() {
			id := l.ID()
			if id == c.llmID {
				id += " *"
			}
			fmt.Fprintf(w, "%s\t%s\t%v\n", id, l.Name(), l.Capabilities())
		}
	})
}

func (c *console) listSettings(ctx context.Context) error {
	return c.table("SETTING\tTYPE\tVALUE", func(w io.Writer) {
		for _, e := range c.h.settings.List() {
			id := e.Setting.Base().ID
			v, _, err := c.h.settings.ForPlugin(e.PluginID).Get(ctx, id)
			value := fmt.Sprint(v)
			if err != nil {
				value = "error: " + err.Error()
			}
			fmt.Fprintf(w, "%s.%s\t%s\t%s\n", e.PluginID, id, e.Setting.Type(), value)
		}
	})
}

func (c *console) table(header string, rows func(io.Writer)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, header)
	rows(w)
	return w.Flush()
}

func (c *console) showError(err error) {
	c.endLine()
	c.println(c.render.Notification(domain.Notification{
		Level:   domain.NotificationError,
		Title:   string(domain.ErrorCodeOf(err)),
		Message: err.Error(),
	}))
}

func (c *console) print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, s)
}

func (c *console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
	c.midLine = false
}

func (c *console) endLine() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.midLine {
		fmt.Fprintln(c.out)
		c.midLine = false
	}
}

// parseValue reads a setting value as JSON, falling back to a plain string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func toolCallFromPayload(p domain.ToolCallPayload) domain.ToolCall {
	pending := domain.PendingToolCall{ToolCallBase: domain.ToolCallBase{ID: p.CallID, ToolID: p.ToolID, Arguments: p.Arguments}}
	switch p.Status {
	case domain.ToolCallSuccess:
		return pending.Succeed(p.Result)
	case domain.ToolCallError:
		if p.Error == "" {
			return pending.Fail(nil)
		}
		return pending.Fail(&p.Error)
	default:
		return pending
	}
}

func drain(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

const helpText = `Type a message to talk to the current model.

  /new [name]            start a chat
  /chats                 list chats
  /open <id>             open a chat and show its latest messages
  /rename <name>         rename the open chat
  /delete [id ...]       delete chats (default: the open one)
  /history [n]           show the last n messages
  /llms, /use <id>       list models, pick the model for new messages
  /tools                 list tools
  /plugins               list active plugins
  /settings              list plugin settings
  /set <plugin>.<id> <v> change a setting (JSON or plain text)
  /reset <plugin>.<id>   restore a setting's default
  /commands, /run <id>   list and run plugin commands
  /quit                  leave`
