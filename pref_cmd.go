package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"

	"github.com/cfilipov/blogd/internal/db"
	"github.com/cfilipov/blogd/internal/models"
	"github.com/cfilipov/blogd/internal/prefstore"
	"github.com/cfilipov/blogd/internal/theme"
)

// cliSource is the store source for writes made from the command line.
const cliSource = "cli"

// newPrefCmd groups offline maintenance of stored theme preferences. The
// database is opened exclusively, so the server must not be running.
func newPrefCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "pref",
		Short: "Inspect or change stored theme preferences",
	}
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Path to data directory (bolt DB)")

	withDB := func(fn func(*bolt.DB) error) error {
		if v := os.Getenv("BLOGD_DATA_DIR"); v != "" && !cmd.PersistentFlags().Changed("data-dir") {
			dataDir = v
		}
		database, err := db.Open(dataDir)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer database.Close()
		return fn(database)
	}

	cmd.AddCommand(
		newPrefGetCmd(withDB),
		newPrefSetCmd(withDB),
		newPrefClearCmd(withDB),
		newPrefListCmd(withDB),
	)
	return cmd
}

type dbRunner func(func(*bolt.DB) error) error

func requireProfile(database *bolt.DB, id string) error {
	if id == "" {
		return errors.New("--profile is required")
	}
	p, err := models.NewProfileStore(database).Find(id)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%q: %w", id, models.ErrProfileNotFound)
	}
	return nil
}

func newPrefGetCmd(withDB dbRunner) *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print a profile's theme preference",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(func(database *bolt.DB) error {
				if err := requireProfile(database, profile); err != nil {
					return err
				}
				pref := prefstore.NewBridge(prefstore.NewStore(database), profile, cliSource, nil).Read()
				_, err := fmt.Fprintln(cmd.OutOrStdout(), pref)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "Profile ID")
	return cmd
}

func newPrefSetCmd(withDB dbRunner) *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:       "set <system|dark|light>",
		Short:     "Store a profile's theme preference",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(theme.System), string(theme.Dark), string(theme.Light)},
		RunE: func(cmd *cobra.Command, args []string) error {
			pref := theme.Preference(args[0])
			if !pref.Valid() {
				return fmt.Errorf("invalid preference %q", args[0])
			}
			return withDB(func(database *bolt.DB) error {
				if err := requireProfile(database, profile); err != nil {
					return err
				}
				return prefstore.NewBridge(prefstore.NewStore(database), profile, cliSource, nil).Write(pref)
			})
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "Profile ID")
	return cmd
}

func newPrefClearCmd(withDB dbRunner) *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove a profile's theme preference (same as system)",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withDB(func(database *bolt.DB) error {
				if err := requireProfile(database, profile); err != nil {
					return err
				}
				return prefstore.NewBridge(prefstore.NewStore(database), profile, cliSource, nil).Clear()
			})
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "Profile ID")
	return cmd
}

func newPrefListCmd(withDB dbRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List profiles with their theme preference",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(func(database *bolt.DB) error {
				profiles, err := models.NewProfileStore(database).List()
				if err != nil {
					return err
				}
				sort.Slice(profiles, func(i, j int) bool {
					return profiles[i].LastSeen.After(profiles[j].LastSeen)
				})

				store := prefstore.NewStore(database)
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PROFILE\tPREFERENCE\tLAST SEEN")
				for _, p := range profiles {
					pref := prefstore.NewBridge(store, p.ID, cliSource, nil).Read()
					fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, pref, p.LastSeen.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
}
