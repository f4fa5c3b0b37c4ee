// Package file provides file-based persistence implementation for workflow and custody records.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/custodian/pkg/persistence"
	"github.com/google/uuid"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Every record is one JSON file; a single lock serializes writers so that
// conditional updates are atomic within the process.
type Persistence struct {
	root string
	mu   *sync.RWMutex

	definitionRepo *DefinitionRepository
	instanceRepo   *InstanceRepository
	stepRepo       *StepRepository
	approvalRepo   *ApprovalRepository
	custodyRepo    *CustodyRepository
	directoryRepo  *DirectoryRepository
	alertRepo      *AlertRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	mu := &sync.RWMutex{}
	s := store{root: cleanRoot, mu: mu}

	return &Persistence{
		root:           cleanRoot,
		mu:             mu,
		definitionRepo: &DefinitionRepository{store: s},
		instanceRepo:   &InstanceRepository{store: s},
		stepRepo:       &StepRepository{store: s},
		approvalRepo:   &ApprovalRepository{store: s},
		custodyRepo:    &CustodyRepository{store: s},
		directoryRepo:  &DirectoryRepository{store: s},
		alertRepo:      &AlertRepository{store: s},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) DefinitionRepository() persistence.DefinitionRepository {
	return fp.definitionRepo
}

func (fp *Persistence) InstanceRepository() persistence.InstanceRepository {
	return fp.instanceRepo
}

func (fp *Persistence) StepRepository() persistence.StepRepository {
	return fp.stepRepo
}

func (fp *Persistence) ApprovalRepository() persistence.ApprovalRepository {
	return fp.approvalRepo
}

func (fp *Persistence) CustodyRepository() persistence.CustodyRepository {
	return fp.custodyRepo
}

func (fp *Persistence) DirectoryRepository() persistence.DirectoryRepository {
	return fp.directoryRepo
}

func (fp *Persistence) AlertRepository() persistence.AlertRepository {
	return fp.alertRepo
}

// store holds the helpers shared by all file repositories.
type store struct {
	root string
	mu   *sync.RWMutex
}

func (s store) path(collection, id string) string {
	return filepath.Join(s.root, collection, id+".json")
}

func (s store) exists(collection, id string) bool {
	_, err := os.Stat(s.path(collection, id))

	return err == nil
}

func (s store) write(collection, id string, record any) error {
	dir := filepath.Join(s.root, collection)

	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", collection, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", collection, id, err)
	}

	tmp, err := os.CreateTemp(dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s %s: %w", collection, id, err)
	}

	err = os.Rename(tmp.Name(), s.path(collection, id))
	if err != nil {
		return fmt.Errorf("failed to replace %s %s: %w", collection, id, err)
	}

	return nil
}

// read loads one record, returning notFound when the file does not exist.
func read[T any](s store, collection, id string, notFound error) (*T, error) {
	data, err := os.ReadFile(s.path(collection, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound
		}

		return nil, fmt.Errorf("failed to read %s %s: %w", collection, id, err)
	}

	var record T

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s %s: %w", collection, id, err)
	}

	return &record, nil
}

// readAll loads every record of a collection that satisfies keep.
func readAll[T any](s store, collection string, keep func(*T) bool) ([]*T, error) {
	root := os.DirFS(filepath.Join(s.root, collection))

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", collection, err)
	}

	records := make([]*T, 0, len(files))

	for _, file := range files {
		record, err := read[T](s, collection, strings.TrimSuffix(file, ".json"), fs.ErrNotExist)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return nil, err
		}

		if keep == nil || keep(record) {
			records = append(records, record)
		}
	}

	return records, nil
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate ID: %w", err)
	}

	return id.String(), nil
}
