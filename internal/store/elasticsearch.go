package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/lattice-run/crawlhive/internal/domain"
	"github.com/lattice-run/crawlhive/internal/logger"
)

// ElasticsearchMirror indexes finalized URL Records into a per-task index.
// It is write-only: ListURLs/AggregateStats are always served from Postgres,
// never from Elasticsearch. It never owns the data: Postgres is always the
// system of record, and a failed mirror write is logged, not propagated.
type ElasticsearchMirror struct {
	client *es.Client
	logger logger.Interface
}

// NewElasticsearchMirror builds a Mirror on top of an existing client.
func NewElasticsearchMirror(client *es.Client, log logger.Interface) *ElasticsearchMirror {
	return &ElasticsearchMirror{client: client, logger: log}
}

func indexNameFor(taskID string) string {
	return "crawlhive-records-" + taskID
}

// IndexRecord upserts record into its task's index, keyed by URL.
func (m *ElasticsearchMirror) IndexRecord(ctx context.Context, record domain.URLRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record for mirror: %w", err)
	}

	res, err := m.client.Index(
		indexNameFor(record.TaskID),
		bytes.NewReader(body),
		m.client.Index.WithContext(ctx),
		m.client.Index.WithDocumentID(record.URL),
	)
	if err != nil {
		m.logger.Warn("elasticsearch mirror: index failed", logger.Error(err))
		return fmt.Errorf("index record: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		m.logger.Warn("elasticsearch mirror: index error response", logger.String("status", res.String()))
		return fmt.Errorf("index record: %s", res.String())
	}
	return nil
}

// DeleteTaskRecords removes a task's entire mirror index.
func (m *ElasticsearchMirror) DeleteTaskRecords(ctx context.Context, taskID string) error {
	res, err := m.client.Indices.Delete(
		[]string{indexNameFor(taskID)},
		m.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		m.logger.Warn("elasticsearch mirror: delete index failed", logger.Error(err))
		return fmt.Errorf("delete mirror index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		// A missing index is not an error for our purposes — the task may
		// never have had a record finalized.
		return nil
	}
	return nil
}
