package dataset

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// EncodeParquet serializes records into one parquet file in memory.
func EncodeParquet(records []Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("records are required")
	}
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Record](buf)
	if _, err := writer.Write(records); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteParquetFile encodes records and writes them to path, creating
// parent directories as needed.
func WriteParquetFile(path string, records []Record) error {
	data, err := EncodeParquet(records)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write parquet file: %w", err)
	}
	return nil
}
