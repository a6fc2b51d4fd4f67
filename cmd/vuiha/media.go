package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/chat"
)

func newImageCmd() *cobra.Command {
	var model, size string

	cmd := &cobra.Command{
		Use:   "image <conversation-id> <prompt...>",
		Short: "Generate an image into a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			res, err := a.deps.Chat.GenerateImage(cmd.Context(), args[0], chat.ImageInput{
				Prompt: strings.Join(args[1:], " "),
				Model:  model,
				Size:   size,
			})
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "image model (default from IMAGE_MODEL)")
	cmd.Flags().StringVar(&size, "size", "", "image size, e.g. 1024x1024")
	return cmd
}

func newSpeakCmd() *cobra.Command {
	var model, voice, format string

	cmd := &cobra.Command{
		Use:   "speak <conversation-id> <text...>",
		Short: "Convert text to speech into a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			res, err := a.deps.Chat.Speak(cmd.Context(), args[0], chat.SpeechInput{
				Text:   strings.Join(args[1:], " "),
				Model:  model,
				Voice:  voice,
				Format: format,
			})
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "speech model (default from TTS_MODEL)")
	cmd.Flags().StringVar(&voice, "voice", "", "voice name (default from TTS_VOICE)")
	cmd.Flags().StringVar(&format, "format", "", "audio format, e.g. wav or mp3")
	return cmd
}

func printResult(cmd *cobra.Command, res *chat.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Saved %s (%s)\n", res.Message.Path, res.Message.MIMEType)
	if res.Message.URL != "" {
		fmt.Fprintf(out, "URL: %s\n", res.Message.URL)
	}
	if res.LogPath != "" {
		fmt.Fprintf(out, "Log: %s\n", res.LogPath)
	}
}
