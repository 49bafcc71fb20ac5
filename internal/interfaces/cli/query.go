package cli

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-MMP/pkg/client"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

const defaultServer = "http://localhost:8080"

// NewQueryCmd builds "mmp query", which reads published results from an API
// server.
func NewQueryCmd() *cobra.Command {
	var (
		server  string
		apiKey  string
		retries int
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query transforms and reports published by an mmp server",
	}
	serverDefault := os.Getenv("MMP_SERVER")
	if serverDefault == "" {
		serverDefault = defaultServer
	}
	cmd.PersistentFlags().StringVar(&server, "server", serverDefault, "API server base URL (env MMP_SERVER)")
	cmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("MMP_API_KEY"), "bearer token for an authenticating gateway (env MMP_API_KEY)")
	cmd.PersistentFlags().IntVar(&retries, "retries", 3, "retries on overload and gateway errors")

	newClient := func() (*client.Client, error) {
		return client.NewClient(server, client.WithAPIKey(apiKey), client.WithRetryMax(retries))
	}

	topCmd := &cobra.Command{
		Use:   "top",
		Short: "List the most frequent transforms across all runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			c, err := newClient()
			if err != nil {
				return err
			}
			counts, err := c.Transforms().Top(cmd.Context(), limit)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(counts))
			for _, tc := range counts {
				rows = append(rows, []string{strconv.FormatInt(tc.Pairs, 10), tc.Transform})
			}
			fmt.Fprint(cmd.OutOrStdout(), FormatTable([]string{"pairs", "transform"}, rows))
			return nil
		},
	}
	topCmd.Flags().Int("limit", 0, "number of transforms (server default when 0)")

	var params client.SearchParams
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Search indexed transform rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.Transforms().Search(cmd.Context(), params)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	sf := searchCmd.Flags()
	sf.StringVar(&params.RunID, "run-id", "", "restrict to one run")
	sf.StringVar(&params.Transform, "transform", "", "exact transform pattern")
	sf.StringVar(&params.Fragment, "fragment", "", "left or right fragment")
	sf.StringVar(&params.StructureID, "structure-id", "", "left or right structure ID")
	sf.BoolVar(&params.IncludeReverse, "include-reverse", false, "include reverse-direction rows")
	sf.IntVar(&params.Offset, "offset", 0, "hits to skip")
	sf.IntVar(&params.Limit, "limit", 0, "page size (server default when 0)")

	reportsCmd := &cobra.Command{
		Use:   "reports RUN_ID",
		Short: "Print download URLs of a run's reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			urls, err := c.Runs().Reports(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			names := make([]string, 0, len(urls))
			for name := range urls {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				rows = append(rows, []string{name, urls[name]})
			}
			fmt.Fprint(cmd.OutOrStdout(), FormatTable([]string{"report", "url"}, rows))
			return nil
		},
	}

	var (
		topK    int
		exclude string
	)
	similarCmd := &cobra.Command{
		Use:   "similar FINGERPRINT_HEX",
		Short: "Find stored fragments with a similar environment fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := hex.DecodeString(args[0])
			if err != nil {
				return errors.InvalidParam("fingerprint must be hex encoded").WithDetail(err.Error())
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			matches, err := c.Transforms().Similar(cmd.Context(), fp, topK, exclude)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), matches)
		},
	}
	similarCmd.Flags().IntVar(&topK, "top-k", 10, "number of matches")
	similarCmd.Flags().StringVar(&exclude, "exclude-run", "", "skip fragments of this run")

	cmd.AddCommand(topCmd, searchCmd, reportsCmd, similarCmd)
	return cmd
}
