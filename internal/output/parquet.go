package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/lucsky/cuid"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/chrisdamba/foodmarket/internal/cloudwriter"
)

type partWriter struct {
	mu   sync.Mutex
	pw   *writer.ParquetWriter
	file source.ParquetFile
}

// ParquetOutput writes one parquet file per topic and hour partition. Each
// output instance names its files after a run id so separate runs never
// overwrite each other.
type ParquetOutput struct {
	basePath string
	folder   string
	runID    string

	mu      sync.Mutex
	writers map[string]*partWriter

	cloudWriterFactory cloudwriter.CloudWriterFactory
	cloudBucketName    string
}

func NewParquetOutput(basePath, folder string) *ParquetOutput {
	return &ParquetOutput{
		basePath: basePath,
		folder:   folder,
		runID:    cuid.New(),
		writers:  make(map[string]*partWriter),
	}
}

func (p *ParquetOutput) UseCloud(factory cloudwriter.CloudWriterFactory, bucket string) {
	p.cloudWriterFactory = factory
	p.cloudBucketName = bucket
}

func (p *ParquetOutput) WriteMessage(topic string, msg []byte) error {
	row, err := decodeRow(topic, msg)
	if err != nil {
		return err
	}
	partition := partitionPath(eventTime(msg))
	writerKey := topic + "/" + partition

	p.mu.Lock()
	w, ok := p.writers[writerKey]
	if !ok {
		w, err = p.createNewWriter(topic, partition)
		if err != nil {
			p.mu.Unlock()
			return fmt.Errorf("failed to create new writer: %w", err)
		}
		p.writers[writerKey] = w
	}
	p.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.pw.Write(row); err != nil {
		return fmt.Errorf("failed to write %s row: %w", topic, err)
	}
	return nil
}

func (p *ParquetOutput) fileName() string {
	return fmt.Sprintf("part-%s.parquet", p.runID)
}

// createNewWriter must be called with p.mu held.
func (p *ParquetOutput) createNewWriter(topic, partition string) (*partWriter, error) {
	schema, err := rowSchema(topic)
	if err != nil {
		return nil, err
	}

	var fw source.ParquetFile
	if p.cloudWriterFactory != nil {
		objectPath := path.Join(p.folder, topic, partition, p.fileName())
		cloudWriter, err := p.cloudWriterFactory.NewWriter(p.cloudBucketName, objectPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create cloud file writer: %w", err)
		}
		fw = NewCloudParquetFile(cloudWriter)
	} else {
		fullPath := filepath.Join(p.basePath, p.folder, topic, filepath.FromSlash(partition))
		if err := os.MkdirAll(fullPath, os.ModePerm); err != nil {
			return nil, err
		}
		fw, err = local.NewLocalFileWriter(filepath.Join(fullPath, p.fileName()))
		if err != nil {
			return nil, fmt.Errorf("failed to create local file writer: %w", err)
		}
	}

	pw, err := writer.NewParquetWriter(fw, schema, 4)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to create ParquetWriter: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	return &partWriter{pw: pw, file: fw}, nil
}

// Close finishes every file. Cloud objects are uploaded here.
func (p *ParquetOutput) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for key, w := range p.writers {
		w.mu.Lock()
		if err := w.pw.WriteStop(); err != nil {
			errs = append(errs, fmt.Errorf("finish %s: %w", key, err))
		}
		if err := w.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
		w.mu.Unlock()
		delete(p.writers, key)
	}
	return errors.Join(errs...)
}

// CloudParquetFile lets the parquet writer stream into a CloudWriter. It is
// write-only.
type CloudParquetFile struct {
	cloudWriter cloudwriter.CloudWriter
	offset      int64
}

func NewCloudParquetFile(cloudWriter cloudwriter.CloudWriter) *CloudParquetFile {
	return &CloudParquetFile{cloudWriter: cloudWriter}
}

func (c *CloudParquetFile) Open(name string) (source.ParquetFile, error) {
	return c, nil
}

func (c *CloudParquetFile) Create(name string) (source.ParquetFile, error) {
	return c, nil
}

func (c *CloudParquetFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		c.offset = offset
	case io.SeekCurrent:
		c.offset += offset
	default:
		return 0, fmt.Errorf("seek whence %d not supported for cloud storage", whence)
	}
	return c.offset, nil
}

func (c *CloudParquetFile) Read(p []byte) (int, error) {
	return 0, fmt.Errorf("read not supported for cloud storage")
}

func (c *CloudParquetFile) Write(p []byte) (int, error) {
	n, err := c.cloudWriter.Write(p)
	c.offset += int64(n)
	return n, err
}

func (c *CloudParquetFile) Close() error {
	return c.cloudWriter.Close()
}
