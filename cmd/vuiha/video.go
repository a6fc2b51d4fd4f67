package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/job"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/video"
)

type videoFlags struct {
	negative   string
	aspect     string
	duration   int
	resolution string
	person     string
	firstFrame string
	lastFrame  string
	references []string
}

func newVideoCmd() *cobra.Command {
	var f videoFlags

	cmd := &cobra.Command{
		Use:   "video <conversation-id> [prompt...]",
		Short: "Generate a video into a conversation and wait for it",
		Long:  "Starts a video generation operation, polls it until it finishes or the poll budget runs out, and stores the result in the conversation. Ctrl-C cancels the job.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			return runVideo(cmd, a, args[0], req)
		},
	}

	cmd.Flags().StringVar(&f.negative, "negative", "", "what the video should not contain")
	cmd.Flags().StringVar(&f.aspect, "aspect", "", "aspect ratio: 16:9, 9:16 or 1:1")
	cmd.Flags().IntVar(&f.duration, "duration", 0, "duration in seconds (4-8)")
	cmd.Flags().StringVar(&f.resolution, "resolution", "", "720p or 1080p (1080p needs 8s)")
	cmd.Flags().StringVar(&f.person, "person", "", "person generation: allow_all, allow_adult or deny_all")
	cmd.Flags().StringVar(&f.firstFrame, "first-frame", "", "image file used as the first frame")
	cmd.Flags().StringVar(&f.lastFrame, "last-frame", "", "image file used as the last frame")
	cmd.Flags().StringArrayVar(&f.references, "ref", nil, "reference image file (repeatable, up to 3)")
	return cmd
}

func (f videoFlags) request(prompt string) (video.Request, error) {
	req := video.Request{
		Prompt:           prompt,
		NegativePrompt:   f.negative,
		AspectRatio:      video.AspectRatio(f.aspect),
		DurationSeconds:  f.duration,
		Resolution:       video.Resolution(f.resolution),
		PersonGeneration: video.PersonGeneration(f.person),
	}

	var err error
	if req.FirstFrame, err = readImage(f.firstFrame); err != nil {
		return req, err
	}
	if req.LastFrame, err = readImage(f.lastFrame); err != nil {
		return req, err
	}
	for _, path := range f.references {
		img, err := readImage(path)
		if err != nil {
			return req, err
		}
		req.ReferenceImages = append(req.ReferenceImages, *img)
	}
	return req, nil
}

func readImage(path string) (*video.Image, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return &video.Image{Data: data}, nil
}

func runVideo(cmd *cobra.Command, a *app, conversationID string, req video.Request) error {
	out := cmd.OutOrStdout()

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	created, done, err := a.deps.Videos.Start(sigCtx, conversationID, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Job %s started with %s. Waiting up to %s...\n", created.ID, created.Model, a.deps.Orchestrator.Budget())

	var final *job.Job
	select {
	case final = <-done:
	case <-sigCtx.Done():
		fmt.Fprintln(out, "Cancelling...")
		if err := a.deps.Videos.Cancel(context.WithoutCancel(sigCtx), created.ID); err != nil {
			a.logger.Warn("cancel failed", slog.String("job_id", created.ID), slog.String("error", err.Error()))
		}
		final = <-done
	}

	if final.Status != job.StatusCompleted {
		return fmt.Errorf("video generation %s [%s]: %s", strings.ToLower(string(final.Status)), final.ErrorKind, final.Error)
	}

	fmt.Fprintf(out, "Saved %s after %d polls\n", final.MediaKey, final.Attempts)
	if final.MediaURL != "" {
		fmt.Fprintf(out, "URL: %s\n", final.MediaURL)
	}
	if final.LogPath != "" {
		fmt.Fprintf(out, "Log: %s\n", final.LogPath)
	}
	return nil
}
