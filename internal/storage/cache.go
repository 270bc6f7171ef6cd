package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dpshade/pocket-docs/internal/models"
)

// TemplateMetadata is the cached summary of a template file
type TemplateMetadata struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Category     models.Category `json:"category"`
	Placeholders []models.Marker `json:"placeholders,omitempty"`
	UsageCount   int             `json:"usage_count"`
	UpdatedAt    time.Time       `json:"updated_at"`
	FilePath     string          `json:"file_path"`
	ModTime      time.Time       `json:"mod_time"`
	FileHash     string          `json:"file_hash"`
}

// MetadataCache indexes the template files so listings can show titles
// and marker counts without parsing every body.
type MetadataCache struct {
	cacheDir  string
	cacheFile string
	metadata  map[string]*TemplateMetadata
	mu        sync.RWMutex
}

// NewMetadataCache creates a new metadata cache
func NewMetadataCache(baseDir string) *MetadataCache {
	cacheDir := filepath.Join(baseDir, "cache")
	return &MetadataCache{
		cacheDir:  cacheDir,
		cacheFile: filepath.Join(cacheDir, "metadata.json"),
		metadata:  make(map[string]*TemplateMetadata),
	}
}

// Load loads the metadata cache from disk
func (c *MetadataCache) Load() error {
	if err := os.MkdirAll(c.cacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := os.ReadFile(c.cacheFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := json.Unmarshal(data, &c.metadata); err != nil {
		// Corrupted cache, start fresh
		c.metadata = make(map[string]*TemplateMetadata)
	}

	return nil
}

// Save saves the metadata cache to disk
func (c *MetadataCache) Save() error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.metadata, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := os.MkdirAll(c.cacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.WriteFile(c.cacheFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	return nil
}

// Get returns the metadata for a file if the file has not changed since it
// was cached
func (c *MetadataCache) Get(relPath string, fileInfo os.FileInfo) (*TemplateMetadata, bool) {
	c.mu.RLock()
	cached, exists := c.metadata[relPath]
	c.mu.RUnlock()
	if !exists {
		return nil, false
	}

	if !fileInfo.ModTime().Equal(cached.ModTime) {
		return nil, false
	}

	return cached, true
}

// Set stores metadata for a template file
func (c *MetadataCache) Set(relPath string, fileInfo os.FileInfo, tmpl *models.Template, fileHash string) {
	c.mu.Lock()
	c.metadata[relPath] = &TemplateMetadata{
		ID:           tmpl.ID,
		Title:        tmpl.Title,
		Category:     tmpl.Category,
		Placeholders: tmpl.Placeholders,
		UsageCount:   tmpl.UsageCount,
		UpdatedAt:    tmpl.UpdatedAt,
		FilePath:     relPath,
		ModTime:      fileInfo.ModTime(),
		FileHash:     fileHash,
	}
	c.mu.Unlock()
}

// Delete drops the entry for relPath
func (c *MetadataCache) Delete(relPath string) {
	c.mu.Lock()
	delete(c.metadata, relPath)
	c.mu.Unlock()
}

// All returns every entry sorted by title
func (c *MetadataCache) All() []*TemplateMetadata {
	c.mu.RLock()
	out := make([]*TemplateMetadata, 0, len(c.metadata))
	for _, m := range c.metadata {
		out = append(out, m)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
	})
	return out
}

// Cleanup removes cache entries for files that no longer exist
func (c *MetadataCache) Cleanup(existingFiles map[string]bool) {
	c.mu.Lock()
	for path := range c.metadata {
		if !existingFiles[path] {
			delete(c.metadata, path)
		}
	}
	c.mu.Unlock()
}

// ToTemplate converts cached metadata back to a Template without its body
func (m *TemplateMetadata) ToTemplate() *models.Template {
	return &models.Template{
		ID:           m.ID,
		Title:        m.Title,
		Category:     m.Category,
		Placeholders: m.Placeholders,
		UsageCount:   m.UsageCount,
		UpdatedAt:    m.UpdatedAt,
		FilePath:     m.FilePath,
	}
}
