package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/chat"
)

const exitCommand = "/exit"

func newChatCmd() *cobra.Command {
	var (
		model       string
		temperature float64
		webSearch   bool
	)

	cmd := &cobra.Command{
		Use:   "chat <conversation-id>",
		Short: "Chat interactively; type /exit to leave",
		Long:  "Reads one prompt per line from stdin and prints the assistant's reply. The whole conversation history is sent with every prompt.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			in := chat.SendInput{Model: model, WebSearch: webSearch}
			if cmd.Flags().Changed("temperature") {
				in.Temperature = &temperature
			}
			return runChat(cmd, a, args[0], in)
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "chat model (default from DEFAULT_MODEL)")
	cmd.Flags().Float64VarP(&temperature, "temperature", "t", 1.0, "sampling temperature")
	cmd.Flags().BoolVar(&webSearch, "web-search", false, "let the model search the web")
	return cmd
}

func runChat(cmd *cobra.Command, a *app, conversationID string, in chat.SendInput) error {
	ctx := cmd.Context()
	conv, err := a.deps.Conversations.Load(ctx, conversationID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Chatting in %s (id: %s). Type %s to leave.\n", conv.Name, conv.ID, exitCommand)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == exitCommand {
			return nil
		}
		if text == "" {
			continue
		}

		in.Text = text
		res, err := a.deps.Chat.Send(ctx, conv.ID, in)
		if err != nil {
			printTurnError(cmd, err)
			continue
		}
		fmt.Fprintf(out, "\nAssistant:\n%s\n\n", res.Message.Content)
		if res.LogPath != "" {
			fmt.Fprintf(out, "Log: %s\n\n", res.LogPath)
		}
	}
}

// printTurnError reports a failed turn without ending the session.
func printTurnError(cmd *cobra.Command, err error) {
	var terr *chat.TurnError
	if errors.As(err, &terr) && terr.LogPath != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error calling API: %v. Details logged at: %s\n", err, terr.LogPath)
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
}
