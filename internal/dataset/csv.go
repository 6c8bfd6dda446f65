package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/yourusername/factor-backtest/internal/models"
)

// LoadCSV reads a headered CSV file. Empty or unparsable numeric cells are null.
func LoadCSV(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV reads CSV records from r.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		row := Row{Values: make(map[string]float64, len(columns))}
		for i, cell := range record {
			if i >= len(columns) {
				break
			}
			cell = strings.TrimSpace(cell)
			switch columns[i] {
			case ColumnCode:
				row.Code = cell
			case ColumnName:
				row.Name = cell
			case ColumnTradeDate:
				t, err := models.ParseDate(cell)
				if err != nil {
					return nil, fmt.Errorf("csv line %d: %w", line, err)
				}
				row.Date = t
			default:
				if cell == "" {
					continue
				}
				if v, err := strconv.ParseFloat(cell, 64); err == nil {
					row.Values[columns[i]] = v
				}
			}
		}
		if row.Name == "" {
			row.Name = row.Code
		}
		rows = append(rows, row)
	}

	return NewFrame(columns, rows)
}
