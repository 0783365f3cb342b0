package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/decora/internal/models"
)

// Importer loads product files into the catalog.
type Importer struct {
	catalog *Catalog
	logger  *zap.Logger
}

// NewImporter creates an importer writing into c.
func NewImporter(c *Catalog, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{catalog: c, logger: logger}
}

// productFile is the document form of a catalog file: either a bare list or an object
// with a products key.
type productFile struct {
	Products []*models.ProductInput `json:"products" yaml:"products"`
}

// ImportFile reads products from a .json, .yaml/.yml, or .xlsx file and upserts them.
// Invalid entries are logged and skipped. It returns the number of products imported.
func (im *Importer) ImportFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read catalog file: %w", err)
	}
	var inputs []*models.ProductInput
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		inputs, err = decodeJSON(data)
	case ".yaml", ".yml":
		inputs, err = decodeYAML(data)
	case ".xlsx":
		inputs, err = decodeSpreadsheet(data)
	default:
		return 0, fmt.Errorf("%w: unsupported catalog file type %q", models.ErrInvalidInput, ext)
	}
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	n := 0
	for i, in := range inputs {
		if in == nil {
			continue
		}
		if _, err := im.catalog.Upsert(ctx, in); err != nil {
			if errors.Is(err, models.ErrInvalidInput) {
				im.logger.Warn("catalog entry skipped",
					zap.String("path", path), zap.Int("entry", i+1), zap.Error(err))
				continue
			}
			return n, err
		}
		n++
	}
	im.logger.Info("catalog file imported", zap.String("path", path), zap.Int("products", n))
	return n, nil
}

// ImportDirectory imports every file under dir whose extension is in allowedExts
// (all supported files when empty). Returns the total number of products imported.
func (im *Importer) ImportDirectory(ctx context.Context, dir string, allowedExts []string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return im.ImportFile(ctx, dir)
	}
	total := 0
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !Supported(path, allowedExts) {
			return nil
		}
		n, err := im.ImportFile(ctx, path)
		total += n
		return err
	})
	return total, err
}

// Supported reports whether path has a catalog file extension, restricted to
// allowedExts when non-empty.
func Supported(path string, allowedExts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json", ".yaml", ".yml", ".xlsx":
	default:
		return false
	}
	if len(allowedExts) == 0 {
		return true
	}
	for _, a := range allowedExts {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == strings.TrimPrefix(ext, ".") {
			return true
		}
	}
	return false
}

func decodeJSON(data []byte) ([]*models.ProductInput, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []*models.ProductInput
		err := json.Unmarshal(data, &list)
		return list, err
	}
	var f productFile
	err := json.Unmarshal(data, &f)
	return f.Products, err
}

func decodeYAML(data []byte) ([]*models.ProductInput, error) {
	var list []*models.ProductInput
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var f productFile
	err := yaml.Unmarshal(data, &f)
	return f.Products, err
}

// decodeSpreadsheet reads the first sheet. The first row names the columns
// (id, name, description, image_url, model_url, style, type, price; any order,
// case-insensitive, spaces allowed in place of underscores).
func decodeSpreadsheet(data []byte) ([]*models.ProductInput, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	columns := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		columns[key] = i
	}
	if _, ok := columns["name"]; !ok {
		return nil, errors.New("header row has no name column")
	}

	cell := func(row []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []*models.ProductInput
	for r, row := range rows[1:] {
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		in := &models.ProductInput{
			ID:          cell(row, "id"),
			Name:        cell(row, "name"),
			Description: cell(row, "description"),
			ImageURL:    cell(row, "image_url"),
			ModelURL:    cell(row, "model_url"),
			Style:       cell(row, "style"),
			Type:        cell(row, "type"),
		}
		if raw := cell(row, "price"); raw != "" {
			price, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid price %q", r+2, raw)
			}
			in.Price = price
		}
		out = append(out, in)
	}
	return out, nil
}
