package main

import (
	"bufio"
	"fmt"
	"os"

	"vectorstore-go/internal/persistence"

	"github.com/urfave/cli/v2"
)

const walVersion = "v1"

// ConvertWAL decodes every record of the input WAL and writes it back in the requested format.
// The input is read with the opposite encoder of the output format.
func ConvertWAL(ctx *cli.Context) error {
	format := ctx.String("format")
	var inputFormat string
	switch format {
	case "binary":
		inputFormat = "text"
	case "text":
		inputFormat = "binary"
	default:
		return fmt.Errorf("format must be 'binary' or 'text', got %q", format)
	}

	count, err := convertWAL(ctx.String("input"), ctx.String("output"), inputFormat, format)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.App.Writer, "Converted %d records from %s to %s (format: %s)\n",
		count, ctx.String("input"), ctx.String("output"), format)
	return nil
}

func convertWAL(inputPath, outputPath, inputFormat, outputFormat string) (int, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	records := persistence.ReadRecords(bufio.NewReader(in), persistence.EncoderFactory(inputFormat, walVersion))

	out, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	encoder := persistence.EncoderFactory(outputFormat, walVersion)
	writer := bufio.NewWriter(out)
	for i := range records {
		if err := encoder.EncodeRecord(writer, &records[i]); err != nil {
			return 0, fmt.Errorf("failed to encode record %d: %w", i, err)
		}
	}
	if err := writer.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush output: %w", err)
	}
	return len(records), out.Sync()
}
