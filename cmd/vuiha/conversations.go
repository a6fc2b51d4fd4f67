package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/config"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/conversation"
)

func newModelsCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the available models",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			models := a.deps.Catalog.Models
			if kind != "" {
				models = a.deps.Catalog.ByKind(config.ModelKind(kind))
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tVALUE\tNAME")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.Kind, m.Value, m.Name)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind (chat, image, speech, video)")
	return cmd
}

func newConversationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			list, err := a.deps.Conversations.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No conversations yet. Create one with: vuiha new")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tUPDATED")
			for _, s := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Name, formatMillis(s.UpdatedAt))
			}
			return w.Flush()
		},
	}
}

func newNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new [name]",
		Short: "Create a conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			conv, err := a.deps.Conversations.Create(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %q (id: %s)\n", conv.Name, conv.ID)
			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print a conversation's turns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			conv, err := a.deps.Conversations.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (id: %s)\n\n", conv.Name, conv.ID)
			for _, m := range conv.Messages {
				fmt.Fprintln(out, formatMessage(m))
			}
			return nil
		},
	}
}

// formatMessage renders one turn for the terminal.
func formatMessage(m conversation.Message) string {
	head := fmt.Sprintf("[%s] %s", formatMillis(m.At), m.Role)
	switch m.Type {
	case conversation.TypeImage, conversation.TypeAudio, conversation.TypeVideo:
		ref := m.Path
		if m.URL != "" {
			ref = m.URL
		}
		return fmt.Sprintf("%s (%s): %s\n  -> %s", head, m.Type, m.Content, ref)
	case conversation.TypeError:
		return fmt.Sprintf("%s (error): %s", head, m.Content)
	default:
		return fmt.Sprintf("%s: %s", head, m.Content)
	}
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}
