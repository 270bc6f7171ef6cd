package storage

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dpshade/pocket-docs/internal/errors"
	"github.com/dpshade/pocket-docs/internal/models"
)

// templateExt is the extension of cached template files
const templateExt = ".html"

// Storage keeps an offline copy of the CRM template library on disk. Each
// template lives at templates/<category>/<id>.html with its metadata in
// YAML frontmatter.
type Storage struct {
	rootPath string
	cache    *MetadataCache
	logger   *zap.Logger
}

// NewStorage creates a new storage instance rooted at rootPath
func NewStorage(rootPath string, logger *zap.Logger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rootPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		rootPath = filepath.Join(homeDir, ".pocket-docs")
	}

	cache := NewMetadataCache(rootPath)
	if err := cache.Load(); err != nil {
		// cache is optional
		logger.Warn("failed to load metadata cache", zap.Error(err))
	}

	return &Storage{
		rootPath: rootPath,
		cache:    cache,
		logger:   logger,
	}, nil
}

// InitLibrary creates the directory structure for the local library
func (s *Storage) InitLibrary() error {
	dirs := []string{
		s.rootPath,
		filepath.Join(s.rootPath, "templates"),
		filepath.Join(s.rootPath, "exports"),
		filepath.Join(s.rootPath, "logs"),
		filepath.Join(s.rootPath, "cache"),
	}
	for _, c := range models.Categories() {
		dirs = append(dirs, filepath.Join(s.rootPath, "templates", string(c)))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// GetBaseDir returns the root path of the storage
func (s *Storage) GetBaseDir() string {
	return s.rootPath
}

// TemplatePath returns the path of a template relative to the root
func TemplatePath(category models.Category, id string) string {
	return filepath.Join("templates", string(category), id+templateExt)
}

// LoadTemplate loads a template from a cached HTML file with YAML frontmatter
func (s *Storage) LoadTemplate(path string) (*models.Template, error) {
	content, err := os.ReadFile(filepath.Join(s.rootPath, path))
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	tmpl, err := parseTemplateFile(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", path, err)
	}

	tmpl.FilePath = path
	return tmpl, nil
}

// SaveTemplate writes a template to its cache file
func (s *Storage) SaveTemplate(tmpl *models.Template) error {
	if tmpl.ID == "" {
		return errors.ValidationError("cannot cache a template without an id")
	}
	if !tmpl.Category.Valid() {
		return errors.InvalidTemplateError(fmt.Sprintf("unknown category %q", tmpl.Category))
	}

	tmpl.FilePath = TemplatePath(tmpl.Category, tmpl.ID)
	fullPath := filepath.Join(s.rootPath, tmpl.FilePath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return errors.StorageError("create template directory", err)
	}

	content, err := serializeTemplate(tmpl)
	if err != nil {
		return errors.StorageError("serialize template", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		return errors.StorageError("write template file", err)
	}

	if info, err := os.Stat(fullPath); err == nil {
		s.cache.Set(tmpl.FilePath, info, tmpl, calculateHash(content))
		if err := s.cache.Save(); err != nil {
			s.logger.Warn("failed to save metadata cache", zap.Error(err))
		}
	}

	return nil
}

// GetTemplate finds a cached template by id in any category
func (s *Storage) GetTemplate(id string) (*models.Template, error) {
	for _, c := range models.Categories() {
		path := TemplatePath(c, id)
		if _, err := os.Stat(filepath.Join(s.rootPath, path)); err != nil {
			continue
		}
		return s.LoadTemplate(path)
	}
	return nil, errors.NotFoundError("Template").WithContext("id", id)
}

// DeleteTemplate removes a template's cache file
func (s *Storage) DeleteTemplate(tmpl *models.Template) error {
	path := tmpl.FilePath
	if path == "" {
		path = TemplatePath(tmpl.Category, tmpl.ID)
	}

	if err := os.Remove(filepath.Join(s.rootPath, path)); err != nil {
		if os.IsNotExist(err) {
			return errors.NotFoundError("Template").WithContext("id", tmpl.ID)
		}
		return errors.StorageError("delete template file", err)
	}

	s.cache.Delete(path)
	return nil
}

// ListTemplates returns the cached templates of one category, or of all
// categories when category is empty. Results are sorted by title.
func (s *Storage) ListTemplates(category models.Category) ([]*models.Template, error) {
	dir := filepath.Join(s.rootPath, "templates")
	if category != "" {
		dir = filepath.Join(dir, string(category))
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*models.Template{}, nil
	}

	templates := []*models.Template{}
	existingFiles := make(map[string]bool)
	cacheModified := false

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, templateExt) {
			return nil
		}

		relPath, _ := filepath.Rel(s.rootPath, path)
		existingFiles[relPath] = true

		tmpl, err := s.LoadTemplate(relPath)
		if err != nil {
			s.logger.Warn("skipping unreadable template", zap.String("path", relPath), zap.Error(err))
			return nil
		}

		if _, valid := s.cache.Get(relPath, info); !valid {
			if data, err := os.ReadFile(path); err == nil {
				s.cache.Set(relPath, info, tmpl, calculateHash(data))
				cacheModified = true
			}
		}

		templates = append(templates, tmpl)
		return nil
	})

	if category == "" {
		s.cache.Cleanup(existingFiles)
	}
	if cacheModified {
		if err := s.cache.Save(); err != nil {
			s.logger.Warn("failed to save metadata cache", zap.Error(err))
		}
	}

	sort.SliceStable(templates, func(i, j int) bool {
		return strings.ToLower(templates[i].Title) < strings.ToLower(templates[j].Title)
	})

	return templates, err
}

// ReplaceCategory makes the cache for category match templates exactly:
// every template is written and files for templates no longer present are
// removed.
func (s *Storage) ReplaceCategory(category models.Category, templates []*models.Template) error {
	keep := make(map[string]bool, len(templates))
	for _, tmpl := range templates {
		if tmpl.Category != category {
			continue
		}
		if err := s.SaveTemplate(tmpl); err != nil {
			return err
		}
		keep[tmpl.FilePath] = true
	}

	dir := filepath.Join(s.rootPath, "templates", string(category))
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return errors.StorageError("read category directory", err)
	}
	for _, entry := range entries {
		rel := filepath.Join("templates", string(category), entry.Name())
		if entry.IsDir() || keep[rel] {
			continue
		}
		if err := os.Remove(filepath.Join(s.rootPath, rel)); err != nil {
			s.logger.Warn("failed to remove stale template", zap.String("path", rel), zap.Error(err))
			continue
		}
		s.cache.Delete(rel)
	}

	if err := s.cache.Save(); err != nil {
		s.logger.Warn("failed to save metadata cache", zap.Error(err))
	}
	return nil
}

// Metadata returns the cached metadata entries, sorted by title
func (s *Storage) Metadata() []*TemplateMetadata {
	return s.cache.All()
}

// Helper functions

func parseTemplateFile(content []byte) (*models.Template, error) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	// Check for frontmatter delimiter
	if !scanner.Scan() || scanner.Text() != "---" {
		return nil, fmt.Errorf("missing frontmatter delimiter")
	}

	var frontmatterLines []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "---" {
			closed = true
			break
		}
		frontmatterLines = append(frontmatterLines, line)
	}
	if !closed {
		return nil, fmt.Errorf("unterminated frontmatter")
	}

	var tmpl models.Template
	if err := yaml.Unmarshal([]byte(strings.Join(frontmatterLines, "\n")), &tmpl); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	var contentLines []string
	for scanner.Scan() {
		contentLines = append(contentLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// serializeTemplate adds one blank separator line and one trailing newline
	body := strings.Join(contentLines, "\n")
	body = strings.TrimPrefix(body, "\n")
	tmpl.Body = body

	return &tmpl, nil
}

// serializeTemplate converts a template to YAML frontmatter followed by the
// HTML body
func serializeTemplate(tmpl *models.Template) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("---\n")

	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(tmpl); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}

	buf.WriteString("---\n")

	if tmpl.Body != "" {
		buf.WriteString("\n")
		buf.WriteString(tmpl.Body)
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

func calculateHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}
