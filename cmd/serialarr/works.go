package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newAddCommand() *cobra.Command {
	var profileID int64
	var providerKey string

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Add a work to the monitored library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			work, err := app.service.AddWork(cmd.Context(), args[0], profileID, providerKey)
			if err != nil {
				return err
			}

			fmt.Printf("Added %q (work %d, provider %s)\n", work.Title, work.ID, work.ProviderKey)
			return nil
		},
	}

	cmd.Flags().Int64Var(&profileID, "profile", 0, "Quality profile id to assign")
	cmd.Flags().StringVar(&providerKey, "provider", "", "Force a provider key instead of URL detection")
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List monitored works and their download progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			summaries, err := app.db.ListWorkSummaries()
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				monitored := "yes"
				if !s.Monitored {
					monitored = "no"
				}
				rows = append(rows, []string{
					strconv.FormatInt(s.ID, 10),
					s.Title,
					s.Author,
					fmt.Sprintf("%d/%d", s.Downloaded, s.Total),
					monitored,
				})
			}

			fmt.Println(renderTable([]string{"ID", "Title", "Author", "Episodes", "Monitored"}, rows, 1, 4))
			return nil
		},
	}
}

func newRetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <work-id>",
		Short: "Requeue a work's failed episodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseWorkID(args[0])
			if err != nil {
				return err
			}

			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			count, err := app.service.RetryFailed(id)
			if err != nil {
				return err
			}

			fmt.Printf("Requeued %d episode(s)\n", count)
			return nil
		},
	}
}

func newDeleteCommand() *cobra.Command {
	var deleteContent bool

	cmd := &cobra.Command{
		Use:   "delete <work-id>",
		Short: "Remove a work from the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseWorkID(args[0])
			if err != nil {
				return err
			}

			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.service.DeleteWork(id, deleteContent); err != nil {
				return err
			}

			fmt.Printf("Deleted work %d\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&deleteContent, "delete-content", false, "Also delete downloaded files")
	return cmd
}

func newPredictCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "predict [work-id]",
		Short: "Predict upcoming releases from publish cadence",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if len(args) == 1 {
				id, err := parseWorkID(args[0])
				if err != nil {
					return err
				}

				dates, err := app.service.UpcomingReleases(id, 5)
				if err != nil {
					return err
				}
				if len(dates) == 0 {
					fmt.Println("Not enough dated episodes to predict a release")
					return nil
				}
				for _, d := range dates {
					fmt.Println(d.Format("2006-01-02 15:04"))
				}
				return nil
			}

			upcoming, err := app.service.ReleaseCalendar()
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(upcoming))
			for _, u := range upcoming {
				rows = append(rows, []string{
					strconv.FormatInt(u.WorkID, 10),
					u.Title,
					u.Expected.Format("2006-01-02 15:04"),
				})
			}

			fmt.Println(renderTable([]string{"ID", "Title", "Expected"}, rows, 1))
			return nil
		},
	}
}

func newSearchCommand() *cobra.Command {
	var providerKey string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search providers for works",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			results, err := app.service.Search(cmd.Context(), args[0], providerKey)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.ProviderKey, r.Title, r.Author, r.URL})
			}

			fmt.Println(renderTable([]string{"Provider", "Title", "Author", "URL"}, rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&providerKey, "provider", "", "Search a single provider")
	return cmd
}

func parseWorkID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid work id %q", arg)
	}
	return id, nil
}
