package output

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/chrisdamba/foodmarket/internal/cloudwriter"
	"github.com/chrisdamba/foodmarket/internal/models"
)

var createdAt = time.Date(2024, 3, 1, 18, 42, 0, 0, time.UTC)

func auditMessage(t *testing.T, key string) []byte {
	t.Helper()
	msg, err := json.Marshal(models.AuditRecord{
		ID:             "rec-" + key,
		IdempotencyKey: key,
		EventType:      models.AuditEventReviewApproved,
		ActorID:        "admin-1",
		EntityType:     "restaurant",
		EntityID:       "rest-1",
		Payload:        json.RawMessage(`{"note":"ok"}`),
		CreatedAt:      createdAt,
	})
	require.NoError(t, err)
	return msg
}

func decisionMessage(t *testing.T) []byte {
	t.Helper()
	sub := "double"
	msg, err := json.Marshal(models.SubstitutionDecision{
		ID:               "dec-1",
		OrderID:          "order-1",
		OriginalItemID:   "burger",
		SubstituteItemID: &sub,
		Decision:         models.DecisionAccept,
		PriceDelta:       decimal.RequireFromString("2.50"),
		Quantity:         2,
		DecidedAt:        createdAt,
	})
	require.NoError(t, err)
	return msg
}

type memoryCloud struct {
	mu      sync.Mutex
	objects map[string][]byte
}

type memoryObject struct {
	cloud *memoryCloud
	key   string
	buf   bytes.Buffer
}

func (o *memoryObject) Write(p []byte) (int, error) { return o.buf.Write(p) }

func (o *memoryObject) Close() error {
	o.cloud.mu.Lock()
	defer o.cloud.mu.Unlock()
	o.cloud.objects[o.key] = o.buf.Bytes()
	return nil
}

func (c *memoryCloud) NewWriter(bucket, objectPath string) (cloudwriter.CloudWriter, error) {
	return &memoryObject{cloud: c, key: bucket + "/" + objectPath}, nil
}

func TestPartitionPath(t *testing.T) {
	assert.Equal(t, "year=2024/month=03/day=01/hour=18", partitionPath(createdAt))
	assert.Equal(t, createdAt, eventTime(auditMessage(t, "k")))
	assert.Equal(t, createdAt, eventTime(decisionMessage(t)))
	assert.WithinDuration(t, time.Now(), eventTime([]byte(`{}`)), time.Minute)
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	out := NewConsoleOutput(&buf)

	require.NoError(t, out.WriteMessage("audit_events", []byte(`{"a":1}`)))
	require.NoError(t, out.Close())
	assert.Equal(t, "[audit_events] {\"a\":1}\n", buf.String())
}

func TestJSONOutput_PartitionsByEventTime(t *testing.T) {
	dir := t.TempDir()
	out := NewJSONOutput(dir, "foodmarket")

	require.NoError(t, out.WriteMessage(models.TopicAuditEvents, auditMessage(t, "k1")))
	require.NoError(t, out.WriteMessage(models.TopicAuditEvents, auditMessage(t, "k2")))
	require.NoError(t, out.Close())

	file := filepath.Join(dir, "foodmarket", models.TopicAuditEvents, "year=2024", "month=03", "day=01", "hour=18", "data.json")
	f, err := os.Open(file)
	require.NoError(t, err)
	defer f.Close()

	var keys []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec models.AuditRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		keys = append(keys, rec.IdempotencyKey)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"k1", "k2"}, keys)
}

func TestJSONOutput_RejectsInvalidJSON(t *testing.T) {
	out := NewJSONOutput(t.TempDir(), "foodmarket")
	assert.Error(t, out.WriteMessage(models.TopicAuditEvents, []byte("not json")))
}

func TestJSONOutput_Cloud(t *testing.T) {
	cloud := &memoryCloud{objects: make(map[string][]byte)}
	out := NewJSONOutput("", "foodmarket")
	out.UseCloud(cloud, "archive")

	require.NoError(t, out.WriteMessage(models.TopicSubstitutionDecisions, decisionMessage(t)))
	assert.Empty(t, cloud.objects, "nothing uploaded before close")
	require.NoError(t, out.Close())

	body, ok := cloud.objects["archive/foodmarket/substitution_decisions/year=2024/month=03/day=01/hour=18/data.json"]
	require.True(t, ok)
	assert.Contains(t, string(body), `"original_item_id":"burger"`)
}

func TestParquetOutput_WritesReadableFile(t *testing.T) {
	dir := t.TempDir()
	out := NewParquetOutput(dir, "foodmarket")

	require.NoError(t, out.WriteMessage(models.TopicAuditEvents, auditMessage(t, "k1")))
	require.NoError(t, out.WriteMessage(models.TopicAuditEvents, auditMessage(t, "k2")))
	require.NoError(t, out.WriteMessage(models.TopicSubstitutionDecisions, decisionMessage(t)))
	require.NoError(t, out.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "foodmarket", models.TopicAuditEvents, "year=2024", "month=03", "day=01", "hour=18", "*.parquet"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	fr, err := local.NewLocalFileReader(matches[0])
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(AuditRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.Equal(t, int64(2), pr.GetNumRows())
	rows := make([]AuditRow, 2)
	require.NoError(t, pr.Read(&rows))
	assert.Equal(t, "k1", rows[0].IdempotencyKey)
	assert.Equal(t, createdAt.UnixMilli(), rows[1].CreatedAt)

	decisions, err := filepath.Glob(filepath.Join(dir, "foodmarket", models.TopicSubstitutionDecisions, "*", "*", "*", "*", "*.parquet"))
	require.NoError(t, err)
	assert.Len(t, decisions, 1)
}

func TestParquetOutput_UnknownTopic(t *testing.T) {
	out := NewParquetOutput(t.TempDir(), "foodmarket")
	assert.Error(t, out.WriteMessage("clickstream", []byte(`{}`)))
	assert.NoError(t, out.Close())
}

func TestNewDecisionRow(t *testing.T) {
	var d models.SubstitutionDecision
	require.NoError(t, json.Unmarshal(decisionMessage(t), &d))

	row := NewDecisionRow(d)
	assert.Equal(t, "2.5", row.PriceDelta)
	assert.Equal(t, int32(2), row.Quantity)
	require.NotNil(t, row.SubstituteItemID)
	assert.Equal(t, "double", *row.SubstituteItemID)
}

func TestKafkaOutput_PublishesKeyedMessages(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(pm *sarama.ProducerMessage) error {
		if pm.Topic != models.TopicAuditEvents {
			return errors.New("wrong topic " + pm.Topic)
		}
		key, err := pm.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "review_k1" {
			return errors.New("wrong key " + string(key))
		}
		return nil
	})
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(pm *sarama.ProducerMessage) error {
		key, err := pm.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "order-1:burger" {
			return errors.New("wrong key " + string(key))
		}
		return nil
	})

	out := NewKafkaOutputWithProducer(producer)
	require.NoError(t, out.WriteMessage(models.TopicAuditEvents, auditMessage(t, "review_k1")))
	require.NoError(t, out.WriteMessage(models.TopicSubstitutionDecisions, decisionMessage(t)))
	require.NoError(t, out.Close())

	assert.Error(t, out.WriteMessage(models.TopicAuditEvents, auditMessage(t, "late")), "closed output")
}

func TestKafkaOutput_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrNotEnoughReplicas)

	out := NewKafkaOutputWithProducer(producer)
	err := out.WriteMessage(models.TopicAuditEvents, auditMessage(t, "k"))
	assert.ErrorIs(t, err, sarama.ErrNotEnoughReplicas)
	require.NoError(t, out.Close())
}

func TestNewSaramaConfig(t *testing.T) {
	cfg := NewSaramaConfig(models.KafkaConfig{SessionTimeoutMs: 10000})

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Net.DialTimeout)
	assert.Equal(t, 10*time.Second, cfg.Consumer.Group.Session.Timeout)
	assert.True(t, cfg.Producer.Return.Successes)
}

func TestNewDestination(t *testing.T) {
	ctx := context.Background()

	out, err := NewDestination(ctx, &models.Config{Output: models.OutputConfig{Format: "console"}})
	require.NoError(t, err)
	assert.IsType(t, &ConsoleOutput{}, out)

	out, err = NewDestination(ctx, &models.Config{Output: models.OutputConfig{Format: "json", Destination: "local", Path: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &JSONOutput{}, out)

	out, err = NewDestination(ctx, &models.Config{Output: models.OutputConfig{Format: "parquet", Destination: "local", Path: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &ParquetOutput{}, out)

	_, err = NewDestination(ctx, &models.Config{Output: models.OutputConfig{Format: "csv"}})
	assert.Error(t, err)

	_, err = NewDestination(ctx, &models.Config{
		Output:       models.OutputConfig{Format: "json", Destination: "cloud"},
		CloudStorage: models.CloudStorageConfig{Provider: "gcs"},
	})
	assert.Error(t, err)
}
