package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DescriptorStore persists the assistant descriptor between runs. The
// file at Path is the only record of whether an assistant already exists.
type DescriptorStore struct {
	Path    string
	service ChatGPTService
}

func NewDescriptorStore(path string, service ChatGPTService) *DescriptorStore {
	return &DescriptorStore{Path: path, service: service}
}

// Load returns the stored descriptor. A missing, unreadable or invalid
// file is reported as absent, never as an error.
func (s *DescriptorStore) Load() (AssistantDescriptor, bool) {
	descriptor, err := loadDescriptor(s.Path)
	if err != nil {
		log.Debug(fmt.Sprintf("no usable assistant descriptor: %+v", err))
		return AssistantDescriptor{}, false
	}
	return descriptor, true
}

// CreateDefault creates a new remote assistant declaring schemas and
// persists its descriptor.
func (s *DescriptorStore) CreateDefault(ctx context.Context, model string, schemas []ToolSchema) (AssistantDescriptor, error) {
	descriptor := AssistantDescriptor{
		Name:         defaultAssistantName,
		Instructions: defaultAssistantInstructions,
		Model:        model,
		Tools:        schemas,
	}

	id, err := s.service.CreateAssistant(ctx, descriptor)
	if err != nil {
		return AssistantDescriptor{}, err
	}
	descriptor.AssistantId = id

	if err := writeDescriptor(descriptor, s.Path); err != nil {
		return descriptor, fmt.Errorf("persist assistant descriptor: %w", err)
	}
	return descriptor, nil
}

// LoadOrCreate loads the stored descriptor or creates a new assistant.
// The boolean reports whether a new assistant was created.
func (s *DescriptorStore) LoadOrCreate(ctx context.Context, model string, schemas []ToolSchema) (AssistantDescriptor, bool, error) {
	descriptor, err := loadDescriptor(s.Path)
	if err == nil {
		return descriptor, false, nil
	}

	var invalid InvalidDescriptorFileError
	if errors.As(err, &invalid) {
		log.Info(fmt.Sprintf("assistant descriptor %s is unusable and will be replaced by a new assistant", s.Path))
	} else {
		log.Debug(fmt.Sprintf("no usable assistant descriptor: %+v", err))
	}
	descriptor, err = s.CreateDefault(ctx, model, schemas)
	if err != nil {
		return descriptor, false, err
	}
	return descriptor, true, nil
}

// AppendFileRef attaches fileId to the remote assistant and persists the
// accumulated file list. Not safe for concurrent use.
func (s *DescriptorStore) AppendFileRef(ctx context.Context, descriptor AssistantDescriptor, fileId string) (AssistantDescriptor, error) {
	if slices.Contains(descriptor.FileIds, fileId) {
		return descriptor, nil
	}

	fileIds := append(slices.Clone(descriptor.FileIds), fileId)
	if err := s.service.UpdateAssistantFiles(ctx, descriptor.AssistantId, fileIds); err != nil {
		return descriptor, err
	}

	descriptor.FileIds = fileIds
	if err := writeDescriptor(descriptor, s.Path); err != nil {
		return descriptor, fmt.Errorf("persist assistant descriptor: %w", err)
	}
	return descriptor, nil
}

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// loadDescriptor reads and validates the descriptor at path.
//
// Possible errors:
//   - DescriptorFileNotFoundError: the file does not exist.
//   - InvalidDescriptorFileError: the path is a directory, cannot be read,
//     cannot be decoded or fails validation.
func loadDescriptor(path string) (AssistantDescriptor, error) {
	var descriptor AssistantDescriptor

	stat, err := os.Stat(path)
	if err != nil {
		return descriptor, DescriptorFileNotFoundError{Path: path}
	} else if stat.IsDir() {
		log.Debug(fmt.Sprintf("cannot load descriptor %s: path is directory, expected file", path))
		return descriptor, InvalidDescriptorFileError{Path: path}
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		log.Debug(fmt.Sprintf("error reading descriptor file: %+v", err))
		return descriptor, InvalidDescriptorFileError{Path: path}
	}

	if isYAMLPath(path) {
		err = yaml.Unmarshal(contents, &descriptor)
	} else {
		err = json.Unmarshal(contents, &descriptor)
	}
	if err != nil {
		log.Debug(fmt.Sprintf("error decoding descriptor file: %+v", err))
		return descriptor, InvalidDescriptorFileError{Path: path}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	err = validate.Struct(descriptor)
	if err != nil && !isYAMLPath(path) {
		// records written with OpenAI shaped tools and file_ids
		var legacy legacyDescriptor
		if json.Unmarshal(contents, &legacy) == nil {
			converted := legacy.descriptor()
			if validate.Struct(converted) == nil {
				log.Info(fmt.Sprintf("read assistant descriptor %s in the legacy layout", path))
				return converted, nil
			}
		}
	}
	if err != nil {
		log.Debug(fmt.Sprintf("descriptor validation error: %+v", err))
		return descriptor, InvalidDescriptorFileError{Path: path}
	}
	return descriptor, nil
}

// legacyDescriptor is the assistant.json layout that stores the create
// request as sent: tools wrap their function and file ids are snake_case.
type legacyDescriptor struct {
	AssistantId  string `json:"assistantId"`
	Name         string `json:"name"`
	Instructions string `json:"instructions"`
	Model        string `json:"model"`
	Tools        []struct {
		Type     string     `json:"type"`
		Function ToolSchema `json:"function"`
	} `json:"tools"`
	FileIds []string `json:"file_ids"`
}

// descriptor keeps the function tools only.
func (l legacyDescriptor) descriptor() AssistantDescriptor {
	descriptor := AssistantDescriptor{
		AssistantId:  l.AssistantId,
		Name:         l.Name,
		Instructions: l.Instructions,
		Model:        l.Model,
		FileIds:      l.FileIds,
	}
	for _, tool := range l.Tools {
		if tool.Type == "function" {
			descriptor.Tools = append(descriptor.Tools, tool.Function)
		}
	}
	return descriptor
}

// writeDescriptor encodes descriptor to a temporary file next to path and
// renames it into place.
func writeDescriptor(descriptor AssistantDescriptor, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAMLPath(path) {
		data, err = yaml.Marshal(descriptor)
	} else {
		data, err = json.MarshalIndent(descriptor, "", "  ")
	}
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".assistant-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0644); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
