package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/chrisdamba/foodmarket/internal/cloudwriter"
)

// JSONOutput appends one JSON document per line to
// <path>/<folder>/<topic>/year=/month=/day=/hour=/data.json.
type JSONOutput struct {
	basePath string
	folder   string

	mu    sync.Mutex
	files map[string]io.WriteCloser

	cloudWriterFactory cloudwriter.CloudWriterFactory
	cloudBucketName    string
}

func NewJSONOutput(basePath, folder string) *JSONOutput {
	return &JSONOutput{
		basePath: basePath,
		folder:   folder,
		files:    make(map[string]io.WriteCloser),
	}
}

// UseCloud sends files to object storage instead of the local disk. Objects
// are uploaded on Close.
func (j *JSONOutput) UseCloud(factory cloudwriter.CloudWriterFactory, bucket string) {
	j.cloudWriterFactory = factory
	j.cloudBucketName = bucket
}

func (j *JSONOutput) WriteMessage(topic string, msg []byte) error {
	var line bytes.Buffer
	if err := json.Compact(&line, msg); err != nil {
		return fmt.Errorf("invalid json message for %s: %w", topic, err)
	}
	line.WriteByte('\n')

	partition := partitionPath(eventTime(msg))
	fileKey := topic + "/" + partition

	j.mu.Lock()
	defer j.mu.Unlock()

	file, ok := j.files[fileKey]
	if !ok {
		var err error
		file, err = j.open(topic, partition)
		if err != nil {
			return err
		}
		j.files[fileKey] = file
	}

	_, err := file.Write(line.Bytes())
	return err
}

func (j *JSONOutput) open(topic, partition string) (io.WriteCloser, error) {
	if j.cloudWriterFactory != nil {
		objectPath := path.Join(j.folder, topic, partition, "data.json")
		w, err := j.cloudWriterFactory.NewWriter(j.cloudBucketName, objectPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create cloud file writer: %w", err)
		}
		return w, nil
	}

	fullPath := filepath.Join(j.basePath, j.folder, topic, filepath.FromSlash(partition))
	if err := os.MkdirAll(fullPath, os.ModePerm); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(fullPath, "data.json"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func (j *JSONOutput) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var errs []error
	for key, file := range j.files {
		if err := file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
		delete(j.files, key)
	}
	return errors.Join(errs...)
}
