package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrLoad                = errors.New("load failed")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrEmptyDocument       = errors.New("document has no text")
)

// Metadata keys attached to every loaded document.
const (
	MetaSource    = "source"
	MetaFileName  = "file_name"
	MetaFileType  = "file_type"
	MetaPageCount = "page_count"
)

// Document is the text of one source file plus its source metadata.
type Document struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// Source returns the path the document was loaded from.
func (d Document) Source() string {
	return d.Metadata[MetaSource]
}

type Loader interface {
	// Scan lists the supported files directly under dir, sorted by path.
	Scan(dir string) ([]string, error)

	// Load reads one file into a Document.
	Load(ctx context.Context, path string) (Document, error)
}

type readFunc func(path string) (string, map[string]string, error)

func NewFileLoader() Loader {
	return &fileLoader{
		readers: map[string]readFunc{
			".txt": readText,
			".pdf": readPDF,
		},
	}
}

type fileLoader struct {
	readers map[string]readFunc
}

// SupportedExtensions returns the lower-case extensions the loader accepts.
func SupportedExtensions() []string {
	return []string{".pdf", ".txt"}
}

func (l *fileLoader) Scan(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrLoad, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := l.readers[ext]; !ok {
			continue
		}

		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	sort.Strings(paths)
	return paths, nil
}

func (l *fileLoader) Load(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	read, ok := l.readers[ext]
	if !ok {
		return Document{}, fmt.Errorf("%w: %w: %s", ErrLoad, ErrUnsupportedFileType, ext)
	}

	text, extra, err := read(path)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}

	if strings.TrimSpace(text) == "" {
		return Document{}, fmt.Errorf("%w: %s: %w", ErrLoad, path, ErrEmptyDocument)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	metadata := map[string]string{
		MetaSource:   abs,
		MetaFileName: filepath.Base(path),
		MetaFileType: strings.TrimPrefix(ext, "."),
	}

	for k, v := range extra {
		metadata[k] = v
	}

	return Document{
		Text:     text,
		Metadata: metadata,
	}, nil
}

func readText(path string) (string, map[string]string, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}

	return string(bs), nil, nil
}

func readPDF(path string) (text string, extra map[string]string, err error) {
	// the pdf package panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", nil, err
	}

	bs, err := io.ReadAll(plain)
	if err != nil {
		return "", nil, err
	}

	extra = map[string]string{
		MetaPageCount: strconv.Itoa(r.NumPage()),
	}

	return string(bs), extra, nil
}
