package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"evidencegen/internal/dataset"
)

var eraseFlags struct {
	input  string
	output string
}

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Blank the evidence of every record",
	Long: `Writes a copy of the dataset with every record's evidence set to the
empty string, producing an evidence-free baseline. Other fields and their
order are kept.`,
	RunE: runErase,
}

func init() {
	eraseCmd.Flags().StringVar(&eraseFlags.input, "input", "", "dataset JSON to read")
	eraseCmd.Flags().StringVar(&eraseFlags.output, "output", "", "dataset JSON to write")
	_ = eraseCmd.MarkFlagRequired("input")
	_ = eraseCmd.MarkFlagRequired("output")
}

func runErase(cmd *cobra.Command, args []string) error {
	records, err := dataset.Load(eraseFlags.input)
	if err != nil {
		return err
	}
	dataset.Erase(records)
	if err := dataset.WriteFile(eraseFlags.output, records); err != nil {
		return fmt.Errorf("write %s: %w", eraseFlags.output, err)
	}
	logger.Info("evidence erased", zap.Int("records", len(records)), zap.String("output", eraseFlags.output))
	return nil
}
