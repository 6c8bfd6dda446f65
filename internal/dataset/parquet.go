package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"

	"github.com/yourusername/factor-backtest/internal/models"
)

const parquetBatchSize = 1024

// leafDecoder describes how to interpret one leaf column of a flat schema.
type leafDecoder struct {
	name    string
	logical *format.LogicalType
}

// LoadParquet reads a flat parquet file whose columns are discovered at runtime.
func LoadParquet(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat parquet file: %w", err)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet metadata: %w", err)
	}

	schema := pf.Schema()
	paths := schema.Columns()
	decoders := make([]leafDecoder, len(paths))
	columns := make([]string, 0, len(paths))
	for i, p := range paths {
		name := strings.Join(p, ".")
		decoders[i] = leafDecoder{name: name}
		if leaf, ok := schema.Lookup(p...); ok {
			decoders[i].logical = leaf.Node.Type().LogicalType()
		}
		columns = append(columns, name)
	}

	reader := parquet.NewReader(pf)
	defer reader.Close()

	rows := make([]Row, 0, pf.NumRows())
	buf := make([]parquet.Row, parquetBatchSize)
	for {
		n, readErr := reader.ReadRows(buf)
		for _, raw := range buf[:n] {
			row, err := decodeParquetRow(raw, decoders)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", len(rows), err)
			}
			rows = append(rows, row)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", readErr)
		}
	}

	return NewFrame(columns, rows)
}

func decodeParquetRow(raw parquet.Row, decoders []leafDecoder) (Row, error) {
	row := Row{Values: make(map[string]float64, len(decoders))}
	for _, v := range raw {
		col := v.Column()
		if col < 0 || col >= len(decoders) || v.IsNull() {
			continue
		}
		dec := decoders[col]
		switch dec.name {
		case ColumnCode:
			row.Code = parquetString(v)
		case ColumnName:
			row.Name = parquetString(v)
		case ColumnTradeDate:
			t, err := parquetTime(v, dec.logical)
			if err != nil {
				return Row{}, err
			}
			row.Date = t
		default:
			if num, ok := parquetNumber(v); ok {
				row.Values[dec.name] = num
			}
		}
	}
	if row.Name == "" {
		row.Name = row.Code
	}
	return row, nil
}

func parquetString(v parquet.Value) string {
	switch v.Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	default:
		return v.String()
	}
}

func parquetNumber(v parquet.Value) (float64, bool) {
	switch v.Kind() {
	case parquet.Double:
		return v.Double(), true
	case parquet.Float:
		return float64(v.Float()), true
	case parquet.Int32:
		return float64(v.Int32()), true
	case parquet.Int64:
		return float64(v.Int64()), true
	case parquet.Boolean:
		if v.Boolean() {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func parquetTime(v parquet.Value, logical *format.LogicalType) (time.Time, error) {
	switch v.Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return models.ParseDate(string(v.ByteArray()))
	case parquet.Int32:
		// DATE: days since the unix epoch.
		return time.Unix(int64(v.Int32())*86400, 0).UTC(), nil
	case parquet.Int64:
		raw := v.Int64()
		if logical != nil && logical.Timestamp != nil {
			unit := logical.Timestamp.Unit
			switch {
			case unit.Millis != nil:
				return time.UnixMilli(raw).UTC(), nil
			case unit.Micros != nil:
				return time.UnixMicro(raw).UTC(), nil
			}
		}
		return time.Unix(0, raw).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported %s value for %s", models.ErrInvalidDateFormat, v.Kind(), ColumnTradeDate)
	}
}
