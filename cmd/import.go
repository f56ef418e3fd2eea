package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalscope/report-cli/internal/model"
)

var (
	importFilePath string
	importSearchID string
)

// importFile is the on-disk format accepted by the import command: the
// search metadata plus its collected posts.
type importFile struct {
	UserID     string        `json:"user_id"`
	OwnerEmail string        `json:"owner_email"`
	Query      string        `json:"query"`
	Filters    model.Filters `json:"filters"`
	Posts      []model.Post  `json:"posts"`
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a search and its collected posts from a JSON file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(importFilePath)
		if err != nil {
			return eris.Wrap(err, "read import file")
		}

		var f importFile
		if err := json.Unmarshal(data, &f); err != nil {
			return eris.Wrap(err, "parse import file")
		}
		if importSearchID == "" && f.Query == "" {
			return eris.New("import file has no query and no --search given")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		searchID := importSearchID
		if searchID == "" {
			search, err := st.CreateSearch(ctx, model.Search{
				UserID:     f.UserID,
				OwnerEmail: f.OwnerEmail,
				Query:      f.Query,
				Filters:    f.Filters,
			})
			if err != nil {
				return eris.Wrap(err, "create search")
			}
			searchID = search.ID
		}

		n, err := st.ImportPosts(ctx, searchID, f.Posts)
		if err != nil {
			return eris.Wrap(err, "import posts")
		}

		zap.L().Info("import complete",
			zap.String("search", searchID),
			zap.Int64("posts", n),
			zap.String("file", importFilePath),
		)

		cmd.Println(searchID)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to JSON file (required)")
	importCmd.Flags().StringVar(&importSearchID, "search", "", "existing search ID to import posts into")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
