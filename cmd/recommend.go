package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/prism/internal/profile"
	"github.com/spigell/prism/internal/recommend"
	"github.com/spigell/prism/internal/search"
	"github.com/spigell/prism/internal/store"
)

const (
	PromptQuery     = "Write your query"
	PromptRecommend = "Get recommendations"
	PromptDelete    = "Delete profile"
	PromptExit      = "Exit"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend [query...]",
	Short: "Get three personalized recommendations for a query",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		d := setup(ctx)
		defer d.close()

		p, err := profile.Load(ctx, d.store)
		if errors.Is(err, store.ErrNotFound) {
			d.logger.Fatal("no profile stored", zap.String("hint", "run 'prism interview' first"))
		}
		if err != nil {
			d.logger.Fatal("loading the profile", zap.Error(err))
		}

		query := strings.Join(args, " ")
		if strings.TrimSpace(query) == "" {
			query, err = (&promptui.Prompt{Label: PromptQuery}).Run()
			if err != nil {
				d.logger.Info("exiting", zap.Error(err))
				return
			}
		}

		noSearch, _ := cmd.Flags().GetBool("no-search")
		var searcher search.Searcher
		if !noSearch {
			searcher = d.searcher()
		}

		if err := recommendOnce(ctx, d, searcher, p, query, cmd.OutOrStdout()); err != nil {
			d.logger.Fatal("generating recommendations", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(recommendCmd)

	recommendCmd.Flags().Bool("no-search", false, "do not enrich the prompt with web search results")
}

func recommendOnce(ctx context.Context, d *deps, searcher search.Searcher, p profile.Profile, query string, out io.Writer) error {
	engine := recommend.NewEngine(d.mustCompleter(ctx), searcher, d.config.Search.MaxResults, d.logger)

	d.logger.Info("analyzing profile and searching for the best options", zap.Bool("web_search", searcher != nil))
	recs, err := engine.Recommend(ctx, p, query)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%s\n\n", recs)
	return nil
}

// home is the bare "prism" command: interview when there is no profile yet,
// otherwise a small menu.
func home(cmd *cobra.Command) {
	ctx := context.Background()
	d := setup(ctx)

	p, err := profile.Load(ctx, d.store)
	if errors.Is(err, store.ErrNotFound) {
		d.close()
		runInterview(cmd, interviewOptions{})
		return
	}
	defer d.close()
	if err != nil {
		d.logger.Fatal("loading the profile", zap.Error(err))
	}

	menu := promptui.Select{
		Label: "What next?",
		Items: []string{PromptRecommend, PromptDelete, PromptExit},
	}

	searcher := d.searcher()
	for {
		_, action, err := menu.Run()
		if err != nil {
			d.logger.Info("exiting", zap.Error(err))
			return
		}

		switch action {
		case PromptRecommend:
			query, err := (&promptui.Prompt{Label: PromptQuery}).Run()
			if err != nil {
				continue
			}
			if err := recommendOnce(ctx, d, searcher, p, query, cmd.OutOrStdout()); err != nil {
				if errors.Is(err, recommend.ErrEmptyQuery) {
					continue
				}
				d.logger.Error("generating recommendations", zap.Error(err))
			}
		case PromptDelete:
			if err := profile.Delete(ctx, d.store); err != nil {
				d.logger.Fatal("deleting the profile", zap.Error(err))
			}
			d.logger.Info("profile deleted", zap.String("hint", "run 'prism' again to start a new interview"))
			return
		default:
			d.logger.Info("exiting", zap.String("reason", "got exit from prompt"))
			return
		}
	}
}
