// package catalog exports media records to a parquet file for analysis outside tfx
package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/shared"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// writers is the parallelism of the parquet writer and reader.
const writers = 4

// Row is one media record as stored in the catalog.
type Row struct {
	ID           string  `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sequence     int64   `parquet:"name=sequence, type=INT64"`
	MediaEntryID string  `parquet:"name=media_entry_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	FileName     string  `parquet:"name=file_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	FinalPath    string  `parquet:"name=final_path, type=BYTE_ARRAY, convertedtype=UTF8"`
	CapturedAt   int64   `parquet:"name=captured_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Year         int32   `parquet:"name=year, type=INT32"`
	Month        int32   `parquet:"name=month, type=INT32"`
	Title        string  `parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8"`
	Description  string  `parquet:"name=description, type=BYTE_ARRAY, convertedtype=UTF8"`
	Latitude     float64 `parquet:"name=latitude, type=DOUBLE"`
	Longitude    float64 `parquet:"name=longitude, type=DOUBLE"`
	RawMetadata  string  `parquet:"name=raw_metadata, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// NewRow flattens record. Unparseable metadata leaves the payload columns empty.
func NewRow(record *models.MediaRecord) Row {
	captured := record.CapturedAt().UTC()
	row := Row{
		ID:           record.ID(),
		Sequence:     int64(record.Sequence()),
		MediaEntryID: record.MediaEntryID(),
		FileName:     record.FileName(),
		FinalPath:    record.FinalPath(),
		CapturedAt:   captured.UnixMilli(),
		Year:         int32(captured.Year()),
		Month:        int32(captured.Month()),
		RawMetadata:  string(record.RawMetadata()),
	}

	if payload, err := record.Payload(); err == nil {
		row.Title = payload.Title
		row.Description = payload.Description
		if payload.GeoData != nil {
			row.Latitude = payload.GeoData.Latitude
			row.Longitude = payload.GeoData.Longitude
		}
	}
	return row
}

// Export writes records to a snappy compressed parquet file at path and returns the number of rows written.
//
// The file is written next to path and renamed into place, so a failed export never leaves a truncated catalog.
func Export(path string, records []*models.MediaRecord, logger *log.Logger) (int, error) {
	if path == "" {
		return 0, fmt.Errorf("%w: output path", shared.ErrMissingArgument)
	}
	if err := shared.EnsureDirs(filepath.Dir(path)); err != nil {
		return 0, err
	}

	tmp := path + ".partial"
	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create %s: %v", shared.ErrIO, tmp, err)
	}

	written, err := write(fw, records)
	if cerr := fw.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: failed to close %s: %v", shared.ErrIO, tmp, cerr)
	}
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("%w: failed to move catalog into place: %v", shared.ErrIO, err)
	}

	logger.Info("catalog exported", "path", path, "rows", written)
	return written, nil
}

func write(fw source.ParquetFile, records []*models.MediaRecord) (int, error) {
	pw, err := writer.NewParquetWriter(fw, new(Row), writers)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create parquet writer: %v", shared.ErrFormat, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, record := range records {
		if err := pw.Write(NewRow(record)); err != nil {
			pw.WriteStop()
			return i, fmt.Errorf("%w: failed to write record %s: %v", shared.ErrIO, record.ID(), err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return len(records), fmt.Errorf("%w: failed to finish parquet file: %v", shared.ErrIO, err)
	}
	return len(records), nil
}

// Read loads every row of the catalog at path.
func Read(path string) ([]Row, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", shared.ErrIO, path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(Row), writers)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read parquet footer: %v", shared.ErrFormat, err)
	}
	defer pr.ReadStop()

	rows := make([]Row, int(pr.GetNumRows()))
	if len(rows) == 0 {
		return rows, nil
	}
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("%w: failed to read rows: %v", shared.ErrFormat, err)
	}
	return rows, nil
}
