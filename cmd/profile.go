package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/prism/internal/interview"
	"github.com/spigell/prism/internal/profile"
	"github.com/spigell/prism/internal/store"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect, rebuild or delete the stored profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored profile as JSON",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := context.Background()
		d := setup(ctx)
		defer d.close()

		p, err := profile.Load(ctx, d.store)
		if errors.Is(err, store.ErrNotFound) {
			d.logger.Info("no profile stored", zap.String("hint", "run 'prism interview' first"))
			return
		}
		if err != nil {
			d.logger.Fatal("loading the profile", zap.Error(err))
		}

		pretty, _ := json.MarshalIndent(p, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
	},
}

var profileBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild the profile from the stored finished interview",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := context.Background()
		d := setup(ctx)
		defer d.close()

		transcript, err := interview.LoadConversation(ctx, d.store)
		if errors.Is(err, store.ErrNotFound) {
			d.logger.Fatal("no finished interview found", zap.String("hint", "run 'prism interview' first"))
		}
		if err != nil {
			d.logger.Fatal("loading the finished interview", zap.Error(err))
		}

		d.logger.Info("generating profile", zap.Int("turns", len(transcript)))
		if err := buildProfile(ctx, d, transcript); err != nil {
			d.logger.Fatal("building the profile", zap.Error(err))
		}
		d.logger.Info("profile saved",
			zap.String("collection", store.CollectionProfiles),
			zap.String("id", store.CurrentProfileID),
		)
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the stored profile",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := context.Background()
		d := setup(ctx)
		defer d.close()

		if err := profile.Delete(ctx, d.store); err != nil {
			d.logger.Fatal("deleting the profile", zap.Error(err))
		}
		d.logger.Info("profile deleted")
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileShowCmd, profileBuildCmd, profileDeleteCmd)
}
