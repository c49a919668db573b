package ingest

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// UploadPart is one uploaded file.
type UploadPart struct {
	Name string
	Size int64
	Body io.Reader
}

func (p *UploadPart) empty() bool {
	return p == nil || p.Body == nil || p.Size == 0
}

// ShapefileUpload carries the parts of an uploaded shapefile. CPG is optional.
type ShapefileUpload struct {
	SHP *UploadPart
	DBF *UploadPart
	SHX *UploadPart
	CPG *UploadPart
}

// Validate checks that the three required parts are present and non-empty.
func (u ShapefileUpload) Validate() error {
	required := []struct {
		ext  string
		part *UploadPart
	}{
		{".shp", u.SHP},
		{".dbf", u.DBF},
		{".shx", u.SHX},
	}
	for _, r := range required {
		if r.part.empty() {
			return &ValidationError{Source: r.ext, Reason: "required shapefile part is missing or empty"}
		}
	}
	if !strings.EqualFold(filepath.Ext(u.SHP.Name), ".shp") {
		return &ValidationError{Source: u.SHP.Name, Reason: "main file must have .shp extension"}
	}
	return nil
}

// ShapefileUpload stages the uploaded parts as temporary files, ingests them
// and removes the temporary files on every return path.
func (i *Ingestor) ShapefileUpload(u ShapefileUpload) (res *Result, err error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	base := filepath.Join(i.tempDir, "shapefile_"+uuid.NewString())
	staged := make([]string, 0, 4)
	defer func() {
		for _, path := range staged {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				i.log.Errorw("Failed to remove temporary shapefile part",
					"error", &ResourceError{Op: "remove", Path: path, Err: rmErr})
			}
		}
	}()

	parts := []struct {
		ext  string
		part *UploadPart
	}{
		{".shp", u.SHP},
		{".dbf", u.DBF},
		{".shx", u.SHX},
		{".cpg", u.CPG},
	}
	for _, p := range parts {
		if p.part.empty() {
			continue
		}
		path := base + p.ext
		staged = append(staged, path)
		if err := stage(path, p.part.Body); err != nil {
			return nil, err
		}
	}

	res, err = i.Shapefile(base + ".shp")
	if res != nil {
		res.Source = u.SHP.Name
	}
	return res, err
}

func stage(path string, body io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return &ResourceError{Op: "create", Path: path, Err: err}
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return &ResourceError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &ResourceError{Op: "close", Path: path, Err: err}
	}
	return nil
}
