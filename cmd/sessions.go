package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"AzzKaraoke/model"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "列出已保存的会话",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, closeRepo, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer closeRepo()

		list, err := repo.List(cmd.Context(), sessionsLimit, 0)
		if err != nil {
			return err
		}
		counts, err := repo.CountByStatus(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sessionTable(list))
		fmt.Fprintf(out, "IDLE %d  PROCESSING %d  READY %d  ERROR %d\n",
			counts[model.StatusIdle], counts[model.StatusProcessing], counts[model.StatusReady], counts[model.StatusError])
		return nil
	},
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "sessions to show")
	rootCmd.AddCommand(sessionsCmd)
}

func sessionTable(list []*model.KaraokeSession) string {
	rows := make([][]string, 0, len(list))
	for _, s := range list {
		title := s.Title
		if s.Status == model.StatusError {
			title = s.ErrorMessage
		}
		rows = append(rows, []string{
			s.ID,
			string(s.Status),
			s.FileName,
			title,
			s.LanguageTag,
			strconv.Itoa(s.LineCount),
			s.UpdatedAt.Format("2006-01-02 15:04"),
		})
	}
	return renderTable(
		[]string{"ID", "Status", "File", "Title", "Lang", "Lines", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}
