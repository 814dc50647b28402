package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/genre-analyzer/internal/scoring"
)

type scoreOutput struct {
	ProbabilityPercent int      `json:"probability_percent"`
	Keywords           []string `json:"keywords"`
	TotalWords         int      `json:"total_words"`
}

func newScoreCmd() *cobra.Command {
	var (
		text     string
		textFile string
		keywords string
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a text against a comma-separated keyword list and print the result.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if textFile != "" {
				if text != "" {
					return errors.New("use either --text or --text-file")
				}
				data, err := os.ReadFile(textFile)
				if err != nil {
					return fmt.Errorf("read text file: %w", err)
				}
				text = string(data)
			}
			out := scoreOutput{
				ProbabilityPercent: scoring.Score(text, keywords),
				Keywords:           scoring.ParseKeywords(keywords),
				TotalWords:         scoring.CountWords(text),
			}
			if out.Keywords == nil {
				out.Keywords = []string{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "text to analyse")
	cmd.Flags().StringVar(&textFile, "text-file", "", "read the text from a file")
	cmd.Flags().StringVar(&keywords, "keywords", "", "comma-separated genre keywords")
	return cmd
}
