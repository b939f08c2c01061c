package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/maltedev/metro-catalog-scraper/internal/models"
)

// CSVDir writes each run to <dir>/<locality>.csv, replacing an earlier file
// for the same locality.
type CSVDir struct {
	dir string
}

func NewCSVDir(dir string) *CSVDir {
	return &CSVDir{dir: dir}
}

// Path returns the file a run for locality is written to.
func (c *CSVDir) Path(locality models.Locality) string {
	return filepath.Join(c.dir, fileName(locality.Name)+".csv")
}

func (c *CSVDir) Save(ctx context.Context, run *models.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %q: %w", c.dir, err)
	}

	path := c.Path(run.Locality)
	tmp, err := os.CreateTemp(c.dir, ".export-*.csv")
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeProducts(tmp, run.Products); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close csv file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move csv file into place: %w", err)
	}
	return nil
}

func writeProducts(f *os.File, products []models.ProductDetail) error {
	writer := csv.NewWriter(f)
	if err := writer.Write(models.CSVHeader()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range products {
		if err := writer.Write(p.Record()); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

func fileName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "unnamed"
	}
	return name
}
