package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/prism/internal/ai"
	"github.com/spigell/prism/internal/elaboration"
	"github.com/spigell/prism/internal/interview"
	"github.com/spigell/prism/internal/profile"
)

const (
	PromptAnswer   = "Your answer"
	msgSaved       = "Progress saved. You can resume later."
	checkpointWait = 10 * time.Second
)

var errInterrupted = errors.New("interview interrupted")

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Run or resume the interview and build the profile from it",
	Run: func(cmd *cobra.Command, _ []string) {
		sessionID, _ := cmd.Flags().GetString("session")
		fresh, _ := cmd.Flags().GetBool("new")
		runInterview(cmd, interviewOptions{sessionID: sessionID, fresh: fresh})
	},
}

func init() {
	rootCmd.AddCommand(interviewCmd)

	interviewCmd.Flags().String("session", "", "resume the session with this id instead of the active one")
	interviewCmd.Flags().Bool("new", false, "start a new session even if one is in progress")
}

type interviewOptions struct {
	sessionID string
	fresh     bool
}

// askFunc reads one answer. def pre-fills the input.
type askFunc func(label, def string) (string, error)

func promptAnswer(label, def string) (string, error) {
	p := promptui.Prompt{
		Label:     label,
		Default:   def,
		AllowEdit: true,
	}
	return p.Run()
}

func runInterview(cmd *cobra.Command, opts interviewOptions) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := setup(ctx)
	defer d.close()
	out := cmd.OutOrStdout()

	plan, err := interview.LoadPlan(d.config.PlanFile)
	if err != nil {
		d.logger.Fatal("loading the interview plan", zap.Error(err))
	}

	llm := d.mustCompleter(ctx)
	machine := interview.NewMachine(
		plan,
		elaboration.NewAssessor(llm, d.assessmentPolicy(), d.logger),
		elaboration.NewGenerator(llm, d.logger),
		interview.NewJournal(d.store, d.config.SnapshotFile, d.logger),
		d.logger,
		interview.WithObserver(d.metrics),
	)

	var session *interview.Session
	if opts.fresh {
		session, err = machine.Start(ctx)
	} else {
		session, err = machine.Resume(ctx, opts.sessionID)
	}
	if err != nil {
		d.logger.Fatal("preparing the interview session", zap.Error(err))
	}

	answered, total := machine.Progress(session)
	d.logger.Info("interview session ready",
		zap.String("session_id", session.ID),
		zap.Int("answered_questions", answered),
		zap.Int("total_questions", total),
	)

	session, err = conduct(ctx, machine, session, promptAnswer, out)
	if errors.Is(err, errInterrupted) {
		// The signal context is already cancelled; save with a fresh deadline.
		saveCtx, cancel := context.WithTimeout(context.Background(), checkpointWait)
		defer cancel()
		if err := machine.Checkpoint(saveCtx, session); err != nil {
			d.logger.Error("saving progress on interrupt", zap.Error(err))
			return
		}
		fmt.Fprintln(out, "\n"+msgSaved)
		return
	}
	if err != nil {
		d.logger.Fatal("interview failed", zap.Error(err), zap.String("hint", "progress up to the last answer is saved; rerun to resume"))
	}

	done, err := machine.Finish(ctx, session)
	if err != nil {
		d.logger.Fatal("storing the finished interview", zap.Error(err))
	}
	fmt.Fprintln(out, "\nInterview complete! Building your profile...")

	if err := buildProfile(ctx, d, done.Transcript); err != nil {
		d.logger.Fatal("building the profile", zap.Error(err), zap.String("hint", "run 'prism profile build' to retry"))
	}
	fmt.Fprintln(out, "Profile saved. Run 'prism recommend' to get personalized recommendations.")
}

// conduct presents prompts until the plan is exhausted. It returns
// errInterrupted when the user aborts or ctx is cancelled; the returned session
// is always the last persisted one.
func conduct(ctx context.Context, m *interview.Machine, s *interview.Session, ask askFunc, out io.Writer) (*interview.Session, error) {
	lastPhase := ""
	retry := ""
	for {
		if ctx.Err() != nil {
			return s, errInterrupted
		}

		p := m.Current(s)
		if p.Done {
			return s, nil
		}

		if p.Phase != lastPhase {
			fmt.Fprintf(out, "\n=== %s ===\n", p.Phase)
			if p.Instructions != "" {
				fmt.Fprintf(out, "%s\n", p.Instructions)
			}
			lastPhase = p.Phase
		}
		if p.FollowUp {
			fmt.Fprintf(out, "\n[Follow-up] %s\n", p.Question)
		} else {
			fmt.Fprintf(out, "\n[Question %d] %s\n", p.Number, p.Question)
		}

		answer, err := ask(PromptAnswer, retry)
		retry = ""
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, io.EOF) {
				return s, errInterrupted
			}
			return s, fmt.Errorf("reading answer: %w", err)
		}

		next, _, err := m.Apply(ctx, s, answer)
		switch {
		case err == nil:
			s = next
		case ctx.Err() != nil:
			return s, errInterrupted
		case errors.Is(err, interview.ErrEmptyAnswer):
			fmt.Fprintln(out, "Please type an answer.")
		case errors.Is(err, ai.ErrUnavailable):
			fmt.Fprintln(out, "The language model is unavailable right now. Your answer was kept; press Enter to send it again.")
			retry = answer
		default:
			return s, err
		}
	}
}

func buildProfile(ctx context.Context, d *deps, transcript []interview.Turn) error {
	p, err := d.synthesizer(ctx).Synthesize(ctx, transcript)
	if err != nil {
		return err
	}
	return profile.Save(ctx, d.store, p)
}
