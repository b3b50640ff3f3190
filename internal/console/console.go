// Package console is the interactive front end of the messenger: it reads one command per line,
// dispatches it through a table of commands and prints results as tables.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"messenger/internal/messenger"
	"messenger/internal/storage"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	errUsage       = errors.New("wrong arguments")
	errNotLoggedIn = errors.New("log in first")
	errNoHistory   = errors.New("no history is open, use history <chat> first")
)

type command struct {
	usage string
	// auth commands are available only after login
	auth bool
	run  func(ctx context.Context, args []string) error
}

// cursor remembers the open history so that "more" can continue it
type cursor struct {
	chat   storage.ChatID
	offset int
	done   bool
}

// Console runs the command loop for a single user session
type Console struct {
	logger   *zap.SugaredLogger
	m        *messenger.Messenger
	in       *bufio.Scanner
	out      io.Writer
	user     string
	history  *cursor
	commands map[string]command
	exit     bool
}

func New(logger *zap.SugaredLogger, m *messenger.Messenger, in io.Reader, out io.Writer) *Console {
	c := &Console{
		logger: logger,
		m:      m,
		in:     bufio.NewScanner(in),
		out:    out,
	}

	c.commands = map[string]command{
		"register": {usage: "register <login> <password> <phone>", run: c.register},
		"login":    {usage: "login <login> <password>", run: c.login},
		"help":     {usage: "help", run: c.help},
		"exit":     {usage: "exit", run: c.quit},

		"contact-add":    {usage: "contact-add <login>", auth: true, run: c.addContact},
		"block-add":      {usage: "block-add <login>", auth: true, run: c.addBlocked},
		"contacts":       {usage: "contacts", auth: true, run: c.contacts},
		"blocked":        {usage: "blocked", auth: true, run: c.blocked},
		"contact-remove": {usage: "contact-remove <login>", auth: true, run: c.removeContact},
		"block-remove":   {usage: "block-remove <login>", auth: true, run: c.removeBlocked},

		"chats":       {usage: "chats", auth: true, run: c.chats},
		"chat-new":    {usage: "chat-new", auth: true, run: c.newChat},
		"chat-add":    {usage: "chat-add <chat> <login>", auth: true, run: c.addMember},
		"chat-delete": {usage: "chat-delete <chat>", auth: true, run: c.deleteChat},

		"post":    {usage: "post <chat> <text>", auth: true, run: c.post},
		"edit":    {usage: "edit <message> <text>", auth: true, run: c.edit},
		"delete":  {usage: "delete <message>", auth: true, run: c.deleteMessage},
		"history": {usage: "history <chat>", auth: true, run: c.openHistory},
		"more":    {usage: "more", auth: true, run: c.more},

		"account-delete": {usage: "account-delete", auth: true, run: c.deleteAccount},
		"logout":         {usage: "logout", auth: true, run: c.logout},
	}

	return c
}

// Run reads commands until exit or the end of input. Command failures are printed and the loop goes on.
func (c *Console) Run(ctx context.Context) error {
	c.prompt()
	for !c.exit && c.in.Scan() {
		if err := c.Exec(ctx, c.in.Text()); err != nil {
			c.printErr(err)
		}
		if !c.exit {
			c.prompt()
		}
	}

	return c.in.Err()
}

// Exec runs a single command line
func (c *Console) Exec(ctx context.Context, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}

	cmd, ok := c.commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q, type help", args[0])
	}
	if cmd.auth && c.user == "" {
		return errNotLoggedIn
	}

	if err := cmd.run(ctx, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return fmt.Errorf("%w, usage: %s", err, cmd.usage)
		}
		return err
	}

	return nil
}

func (c *Console) prompt() {
	if c.user == "" {
		fmt.Fprint(c.out, "> ")
		return
	}
	fmt.Fprintf(c.out, "%s> ", c.user)
}

func (c *Console) printErr(err error) {
	var se *messenger.StorageError
	if errors.As(err, &se) {
		c.logger.Error(err)
		fmt.Fprintln(c.out, "error: service is unavailable, try again later")
		return
	}
	fmt.Fprintln(c.out, "error:", err)
}

func (c *Console) table(header []string, rows [][]string) {
	table := tablewriter.NewWriter(c.out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(rows)
	table.Render()
}

func parseChat(s string) (storage.ChatID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: %q is not a chat id", errUsage, s)
	}
	return storage.ChatID(id), nil
}

func parseMessage(s string) (storage.MessageID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: %q is not a message id", errUsage, s)
	}
	return storage.MessageID(id), nil
}

func (c *Console) register(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errUsage
	}

	err := c.m.Accounts.Register(ctx, messenger.RegisterRequest{Login: args[0], Password: args[1], Phone: args[2]})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "registered %s, now login\n", args[0])
	return nil
}

func (c *Console) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}

	if err := c.m.Accounts.LogIn(ctx, args[0], args[1]); err != nil {
		return err
	}

	c.user, c.history = args[0], nil
	fmt.Fprintf(c.out, "logged in as %s\n", c.user)
	return nil
}

func (c *Console) help(context.Context, []string) error {
	names := lo.Filter(lo.Keys(c.commands), func(name string, _ int) bool {
		return c.user != "" || !c.commands[name].auth
	})
	sort.Strings(names)

	c.table([]string{"Command", "Usage"}, lo.Map(names, func(name string, _ int) []string {
		return []string{name, c.commands[name].usage}
	}))
	return nil
}

func (c *Console) quit(context.Context, []string) error {
	c.exit = true
	return nil
}

func (c *Console) logout(context.Context, []string) error {
	c.user, c.history = "", nil
	return nil
}

func (c *Console) deleteAccount(ctx context.Context, _ []string) error {
	if err := c.m.Accounts.DeleteAccount(ctx, c.user); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "account %s is deleted\n", c.user)
	c.user, c.history = "", nil
	return nil
}

func (c *Console) addContact(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	return c.m.Relationships.AddContact(ctx, c.user, args[0])
}

func (c *Console) addBlocked(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	return c.m.Relationships.AddBlocked(ctx, c.user, args[0])
}

func (c *Console) removeContact(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	return c.m.Relationships.RemoveContact(ctx, c.user, args[0])
}

func (c *Console) removeBlocked(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	return c.m.Relationships.RemoveBlocked(ctx, c.user, args[0])
}

func (c *Console) contacts(ctx context.Context, _ []string) error {
	logins, err := c.m.Relationships.ListContacts(ctx, c.user)
	if err != nil {
		return err
	}
	c.logins("Contact", logins)
	return nil
}

func (c *Console) blocked(ctx context.Context, _ []string) error {
	logins, err := c.m.Relationships.ListBlocked(ctx, c.user)
	if err != nil {
		return err
	}
	c.logins("Blocked", logins)
	return nil
}

func (c *Console) logins(header string, logins []string) {
	if len(logins) == 0 {
		fmt.Fprintln(c.out, "the list is empty")
		return
	}

	c.table([]string{"#", header}, lo.Map(logins, func(login string, i int) []string {
		return []string{strconv.Itoa(i + 1), login}
	}))
}

func (c *Console) chats(ctx context.Context, _ []string) error {
	ids, err := c.m.Chats.ListChatsFor(ctx, c.user)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(c.out, "you have no chats")
		return nil
	}

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		chat, err := c.m.Chats.Chat(ctx, id)
		if err != nil {
			return err
		}
		rows = append(rows, []string{
			strconv.FormatInt(int64(chat.ID), 10),
			string(chat.Type),
			chat.Initiator,
			strings.Join(chat.Members, ", "),
		})
	}

	c.table([]string{"Chat", "Type", "Initiator", "Members"}, rows)
	return nil
}

func (c *Console) newChat(ctx context.Context, _ []string) error {
	id, err := c.m.Chats.CreateChat(ctx, c.user)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "created chat %d\n", id)
	return nil
}

func (c *Console) addMember(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	id, err := parseChat(args[0])
	if err != nil {
		return err
	}
	return c.m.Chats.AddMember(ctx, c.user, id, args[1])
}

func (c *Console) deleteChat(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := parseChat(args[0])
	if err != nil {
		return err
	}
	return c.m.Chats.DeleteChat(ctx, c.user, id)
}

func (c *Console) post(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	chat, err := parseChat(args[0])
	if err != nil {
		return err
	}

	id, err := c.m.Messages.Post(ctx, c.user, chat, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "posted message %d\n", id)
	return nil
}

func (c *Console) edit(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	id, err := parseMessage(args[0])
	if err != nil {
		return err
	}
	return c.m.Messages.Edit(ctx, c.user, id, strings.Join(args[1:], " "))
}

func (c *Console) deleteMessage(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := parseMessage(args[0])
	if err != nil {
		return err
	}
	return c.m.Messages.Delete(ctx, c.user, id)
}

func (c *Console) openHistory(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	chat, err := parseChat(args[0])
	if err != nil {
		return err
	}

	c.history = &cursor{chat: chat}
	return c.page(ctx)
}

func (c *Console) more(ctx context.Context, _ []string) error {
	if c.history == nil {
		return errNoHistory
	}
	if c.history.done {
		fmt.Fprintln(c.out, "no more messages")
		return nil
	}
	return c.page(ctx)
}

func (c *Console) page(ctx context.Context) error {
	page, err := c.m.Messages.Page(ctx, c.history.chat, c.user, c.history.offset)
	if err != nil {
		c.history = nil
		return err
	}

	c.history.offset, c.history.done = page.NextOffset, page.Exhausted

	if len(page.Messages) == 0 {
		fmt.Fprintln(c.out, "no messages")
		return nil
	}

	c.table([]string{"ID", "Time", "Sender", "Text"}, lo.Map(page.Messages, func(m storage.Message, _ int) []string {
		return []string{
			strconv.FormatInt(int64(m.ID), 10),
			m.Timestamp.Local().Format("2006-01-02 15:04:05"),
			m.Sender,
			m.Text,
		}
	}))
	if !page.Exhausted {
		fmt.Fprintln(c.out, "type more for older messages")
	}
	return nil
}
