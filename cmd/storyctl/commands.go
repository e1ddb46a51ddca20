package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"story-player/internal/models"
	"story-player/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
)

func healthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the story backend is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()
			if _, err := a.api.HealthCheck(cmd.Context()); err != nil {
				return fmt.Errorf("story backend is not healthy: %w", err)
			}
			fmt.Fprintf(a.out, "story backend at %s is healthy\n", opts.apiURL)
			return nil
		},
	}
}

func startCmd(opts *rootOptions) *cobra.Command {
	var (
		child       models.Child
		duration    int
		interactive bool
		moral       string
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new story, replacing the one in progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := models.StartRequest{
				Child:       child.Normalize(),
				Duration:    models.Duration(duration),
				Interactive: interactive,
				MoralFocus:  models.MoralFocus(moral),
			}
			if err := validator.New().Struct(req.Child); err != nil {
				return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
			}

			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			fmt.Fprintf(a.out, "Writing a story for %s...\n", req.Child.Name)
			snap, err := a.player.Start(cmd.Context(), req)
			if err != nil {
				if snap.Error != "" {
					return errors.New(snap.Error)
				}
				return err
			}
			a.renderSession(snap.Session)
			if snap.State != service.StateFinal {
				fmt.Fprintf(a.out, "\nRun `storyctl play --tab %s` to keep going.\n", opts.tabID)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&child.Name, "name", "", "Child's name")
	f.StringVar(&child.Gender, "gender", "other", "Child's gender (female, male, other)")
	f.StringVar((*string)(&child.AgeGroup), "age-group", string(models.AgeGroup7to9), "Age group (4-6, 7-9, 10-12)")
	f.StringSliceVar(&child.Interests, "interest", nil, "Interest, repeatable (up to 5)")
	f.StringVar(&child.Context, "context", "", "Something going on in the child's life")
	f.IntVar(&duration, "duration", int(models.DurationMedium), "Story length in minutes (2, 5, 10)")
	f.BoolVar(&interactive, "interactive", true, "Let the child choose at checkpoints")
	f.StringVar(&moral, "moral", string(models.MoralKindness), "Moral focus of the story")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func playCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Continue the story in progress, choosing A or B at each checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()
			return a.play(cmd.Context())
		},
	}
}

func showCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the story so far",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()
			snap, err := a.resume(cmd.Context())
			if err != nil {
				return err
			}
			a.renderSession(snap.Session)
			fmt.Fprintf(a.out, "\nstate: %s\n", snap.State)
			return nil
		},
	}
}

func resetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the story in progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.player.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "story cleared")
			return nil
		},
	}
}

func (a *app) resume(ctx context.Context) (service.Snapshot, error) {
	snap, err := a.player.Resume(ctx)
	switch {
	case errors.Is(err, models.ErrNoSession):
		return snap, errors.New("no story in progress, run `storyctl start` first")
	case errors.Is(err, models.ErrSessionCorrupted):
		return snap, errors.New("the saved story could not be restored and was removed, run `storyctl start`")
	}
	return snap, err
}

// play ведет диалог выбора, пока история не закончится или не кончится ввод.
func (a *app) play(ctx context.Context) error {
	snap, err := a.resume(ctx)
	if err != nil {
		return err
	}
	if sess := snap.Session; sess.IsInteractive() {
		a.renderSegment(sess.Interactive.CurrentSegment)
	}

	input := bufio.NewScanner(a.in)
	readLine := func(prompt string) (string, bool) {
		fmt.Fprint(a.out, prompt)
		if !input.Scan() {
			return "", false
		}
		return strings.ToUpper(strings.TrimSpace(input.Text())), true
	}

	for {
		switch snap.State {
		case service.StateFinal:
			a.renderEnding(snap.Session)
			return nil

		case service.StateAwaitingBranches:
			fmt.Fprintln(a.out, "Preparing the next choices...")
			snap = a.waitForChoices(ctx)
			if err := ctx.Err(); err != nil {
				return err
			}

		case service.StateError:
			fmt.Fprintln(a.out, snap.Error)
			answer, ok := readLine("Try again? [y/N] ")
			if !ok || answer != "Y" {
				return errors.New(snap.Error)
			}
			snap, _ = a.player.Retry(ctx)
			if snap.State == service.StateAwaitingChoice && len(snap.Session.Interactive.History) > 1 {
				a.renderLastStep(snap.Session)
			}

		case service.StateAwaitingChoice:
			a.renderOptions(snap.Session)
			answer, ok := readLine("Choose A or B (Q to stop): ")
			if !ok || answer == "Q" {
				fmt.Fprintln(a.out, "Progress saved.")
				return nil
			}
			next, err := a.player.Choose(ctx, models.ChoiceID(answer))
			switch {
			case errors.Is(err, models.ErrIllegalChoice):
				fmt.Fprintln(a.out, "Please choose one of the offered options.")
				continue
			case err != nil && next.State != service.StateError:
				return err
			}
			snap = next
			if err == nil {
				a.renderLastStep(snap.Session)
			}

		default:
			return fmt.Errorf("unexpected player state %q", snap.State)
		}
	}
}

// waitForChoices ждет, пока опрос веток не выведет плеер из awaiting-branches.
func (a *app) waitForChoices(ctx context.Context) service.Snapshot {
	updates := make(chan service.Snapshot, 1)
	unsubscribe := a.player.Subscribe(func(s service.Snapshot) {
		select {
		case updates <- s:
		default:
		}
	})
	defer unsubscribe()

	snap := a.player.Snapshot()
	for snap.State == service.StateAwaitingBranches {
		select {
		case <-updates:
		case <-time.After(time.Second):
		case <-ctx.Done():
			return snap
		}
		snap = a.player.Snapshot()
	}
	return snap
}
