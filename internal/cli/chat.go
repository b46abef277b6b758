package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"readshift/internal/chat"
)

func (r *runner) chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk with the assistant about your books",
	}
	cmd.AddCommand(r.chatListCmd(), r.chatNewCmd(), r.chatRenameCmd(), r.chatDeleteCmd(),
		r.chatHistoryCmd(), r.chatSendCmd(), r.chatOpenCmd())
	return cmd
}

// initChat starts a chat controller, failing when logged out.
func (r *runner) initChat(ctx context.Context) (*chat.Controller, error) {
	c := r.app.Chat()
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *runner) chatListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := r.initChat(cmd.Context())
			if err != nil {
				return err
			}
			s := c.Snapshot()
			r.printNotices(s.Notices)
			if len(s.Conversations) == 0 {
				r.println("No conversations yet. Start one with `readshift chat new <book-id>`.")
				return nil
			}
			titles := make(map[int64]string, len(s.Books))
			for _, b := range s.Books {
				titles[b.ID] = b.Title
			}
			now := time.Now()
			for _, conv := range s.Conversations {
				r.printf("%d. %s [%s] %s, %d messages\n", conv.ID, conv.Title, titles[conv.BookID], chat.FormatRelative(conv.UpdatedAt.Time, now), conv.TotalMessages)
			}
			return nil
		},
	}
}

func (r *runner) chatNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new <book-id>",
		Short: "Start a conversation about a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book")
			if err != nil {
				return err
			}
			c, err := r.initChat(cmd.Context())
			if err != nil {
				return err
			}
			conv, err := c.Create(cmd.Context(), id)
			r.printNotices(c.Snapshot().Notices)
			if err != nil {
				return err
			}
			r.printf("Conversation %d started.\n", conv.ID)
			return nil
		},
	}
}

func (r *runner) chatRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <conversation-id> <title>",
		Short: "Rename a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "conversation")
			if err != nil {
				return err
			}
			c, err := r.initChat(cmd.Context())
			if err != nil {
				return err
			}
			err = c.Rename(cmd.Context(), id, strings.Join(args[1:], " "))
			r.printNotices(c.Snapshot().Notices)
			return err
		},
	}
}

func (r *runner) chatDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <conversation-id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "conversation")
			if err != nil {
				return err
			}
			ok, err := r.confirm(yes, "Are you sure you want to delete this conversation")
			if err != nil || !ok {
				return err
			}
			c, err := r.initChat(cmd.Context())
			if err != nil {
				return err
			}
			err = c.Delete(cmd.Context(), id)
			r.printNotices(c.Snapshot().Notices)
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func (r *runner) chatHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := r.selectConversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			s := c.Snapshot()
			r.printConversationHeader(s)
			for _, m := range s.Messages {
				r.printMessage(m)
			}
			return nil
		},
	}
}

func (r *runner) chatSendCmd() *cobra.Command {
	var opts chat.SendOptions
	cmd := &cobra.Command{
		Use:   "send <conversation-id> <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := r.selectConversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return r.send(cmd.Context(), c, strings.Join(args[1:], " "), opts)
		},
	}
	cmd.Flags().StringVar(&opts.MessageType, "type", "", "message type, e.g. question or summary")
	cmd.Flags().StringVar(&opts.Tone, "tone", "", "reply tone")
	return cmd
}

func (r *runner) chatOpenCmd() *cobra.Command {
	var bookID int64
	var opts chat.SendOptions
	cmd := &cobra.Command{
		Use:   "open [conversation-id]",
		Short: "Chat interactively; --book starts a new conversation about a book",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if bookID > 0 {
				if err := r.app.Library.StartChat(ctx, bookID); err != nil {
					return err
				}
			}
			c, err := r.initChat(ctx)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				id, err := parseID(args[0], "conversation")
				if err != nil {
					return err
				}
				if err := c.Select(ctx, id); err != nil {
					return err
				}
			}
			s := c.Snapshot()
			r.printNotices(s.Notices)
			if s.Current == nil {
				return fmt.Errorf("no conversation selected; pass a conversation id or --book")
			}
			r.printConversationHeader(s)
			for _, m := range s.Messages {
				r.printMessage(m)
			}
			r.println("Type /quit to leave.")
			for {
				line, err := r.prompt.Input("You", "")
				if quit(err) {
					return nil
				}
				if err != nil {
					return err
				}
				line = strings.TrimSpace(line)
				if line == "/quit" || line == "/exit" {
					return nil
				}
				if err := r.send(ctx, c, line, opts); err != nil && c.Snapshot().State == chat.StateLoggedOut {
					return err
				}
			}
		},
	}
	cmd.Flags().Int64Var(&bookID, "book", 0, "start a new conversation about this book")
	cmd.Flags().StringVar(&opts.MessageType, "type", "", "message type")
	cmd.Flags().StringVar(&opts.Tone, "tone", "", "reply tone")
	return cmd
}

func (r *runner) selectConversation(ctx context.Context, raw string) (*chat.Controller, error) {
	id, err := parseID(raw, "conversation")
	if err != nil {
		return nil, err
	}
	c, err := r.initChat(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Select(ctx, id); err != nil {
		return nil, err
	}
	return c, nil
}

// send prints the placeholder while waiting and the reply or notices after.
func (r *runner) send(ctx context.Context, c *chat.Controller, text string, opts chat.SendOptions) error {
	c.OnChange(func(s chat.Snapshot) {
		if s.State == chat.StateSending {
			fmt.Fprintln(r.errOut, chat.PlaceholderText)
		}
	})
	defer c.OnChange(nil)
	before := len(c.Snapshot().Messages)
	err := c.Send(ctx, text, opts)
	s := c.Snapshot()
	r.printNotices(s.Notices)
	if err != nil {
		return err
	}
	for _, m := range s.Messages[min(before, len(s.Messages)):] {
		if m.Role == "assistant" {
			r.printMessage(m)
		}
	}
	return nil
}

func (r *runner) printConversationHeader(s chat.Snapshot) {
	if s.Current == nil {
		return
	}
	r.printf("== %s ==\n", s.Current.Title)
	if s.BookTitle != "" {
		r.printf("About: %s\n", s.BookTitle)
	}
}

func (r *runner) printMessage(m chat.ChatMessage) {
	who := "You"
	if m.Role != "user" {
		who = "Assistant"
	}
	r.printf("%s: %s\n", who, m.Content)
}

func (r *runner) printNotices(notices []chat.Notice) {
	for _, n := range notices {
		if n.Level == chat.NoticeError {
			fmt.Fprintln(r.errOut, n.Text)
			continue
		}
		r.println(n.Text)
	}
}
