package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wbrown/janus-rowflow/rowflow/storage"
)

var (
	seedDB    string
	seedExtra int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write the demo tables into a badger database",
	Long: `Creates tables "left" and "right", both indexed on k, holding the demo
rows. --extra appends synthetic right rows with k cycling through 0..49.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedDB == "" {
			return errors.New("--db is required")
		}
		db, err := storage.Open(seedDB)
		if err != nil {
			return err
		}
		defer db.Close()
		return seed(db, seedExtra, cmd.OutOrStdout())
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedDB, "db", "", "badger database directory")
	seedCmd.Flags().IntVar(&seedExtra, "extra", 0, "synthetic right rows to add")
}

func seed(db *storage.DB, extra int, w io.Writer) error {
	right := demoRight()
	for i := 0; i < extra; i++ {
		right = append(right, map[string]any{"id": 1000 + i, "k": i % 50, "v": fmt.Sprintf("s%d", i)})
	}
	for _, t := range []struct {
		name    string
		records []map[string]any
	}{
		{"left", demoLeft()},
		{"right", right},
	} {
		table, err := db.CreateTable(t.name, "k")
		if err != nil {
			return err
		}
		if _, err := table.Insert(t.records); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s table %s: %d rows\n", color.GreenString("created"), t.name, len(t.records))
	}
	return nil
}
