package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the resource categories on the server",
	Long: `Lists every resource category with its id. Imports and exports of
resources address their target category by these ids.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.Timeout)
		defer cancel()

		cats, err := newEngine().Categories(ctx)
		if err != nil {
			return userError(err)
		}
		if len(cats) == 0 {
			fmt.Println("no categories found")
			return nil
		}
		for _, c := range cats {
			fmt.Printf("%6d  %s\n", c.ID, c.Title)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}
