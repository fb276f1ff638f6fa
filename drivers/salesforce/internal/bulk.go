package driver

import (
	"context"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/datamorph-io/forcetap/constants"
	"github.com/datamorph-io/forcetap/drivers/abstract"
	"github.com/datamorph-io/forcetap/types"
	"github.com/datamorph-io/forcetap/utils/logger"
)

const (
	batchStateQueued       = "Queued"
	batchStateInProgress   = "InProgress"
	batchStateCompleted    = "Completed"
	batchStateFailed       = "Failed"
	batchStateNotProcessed = "Not Processed"

	pkChunkingHeader = "Sforce-Enable-PKChunking"
	pkChunkSize      = 100000

	bulkDisabledCode = "API_DISABLED_FOR_ORG"
)

// checkBulkPermissions probes the REST limits endpoint the way a bulk quota
// read would; an API_DISABLED_FOR_ORG rejection means the org has the Bulk
// API switched off. Any other probe failure does not block discovery.
func (s *Salesforce) checkBulkPermissions(ctx context.Context) error {
	_, err := s.request(ctx, http.MethodGet, s.dataURL("limits"), s.standardHeaders(), nil)
	if err == nil {
		return nil
	}
	if errors.Is(err, constants.ErrQuotaExceeded) {
		return err
	}
	if strings.Contains(err.Error(), bulkDisabledCode) {
		return types.NewClassifiedErrorWrap(ErrCodeBulkAPIDisabled,
			"Bulk API permissions are currently disabled for this Salesforce account. Enable this setting in Salesforce and try again.", err)
	}
	logger.Debugf("Bulk permission check failed, continuing discovery: %s", err)
	return nil
}

// bulkExtractor drives the asynchronous job: submit, poll, drain batch by
// batch. Batches may arrive out of order, so the replication key bookmark is
// tracked as a high-water mark and the drained batch is the atomic unit of
// resumability.
type bulkExtractor struct {
	sf     *Salesforce
	stream types.StreamInterface
}

// batch control responses come back as XML for CSV content jobs
type batchInfo struct {
	ID           string `xml:"id"`
	State        string `xml:"state"`
	StateMessage string `xml:"stateMessage"`
}

type batchInfoList struct {
	Batches []batchInfo `xml:"batchInfo"`
}

type resultIDList struct {
	Results []string `xml:"result"`
}

func (b *bulkExtractor) Chunked() bool {
	return true
}

func (b *bulkExtractor) Extract(ctx context.Context, startDate time.Time, onRecord abstract.RecordFn, checkpoint abstract.CheckpointFn) error {
	fields := b.stream.SelectedFields(b.sf.config.SelectFieldsByDefault)
	// batches may return out of order, server-side ordering is unavailable
	query, err := buildQuery(b.stream, fields, startDate, nil, b.sf.config.Filter, false)
	if err != nil {
		return err
	}

	jobID, err := b.createJob(ctx)
	if err != nil {
		return err
	}
	logger.Infof("Created bulk job %s for stream %s", jobID, b.stream.ID())

	initialBatchID, err := b.addBatch(ctx, jobID, query)
	if err != nil {
		return b.sf.classifyQueryError(err)
	}
	if err := b.closeJob(ctx, jobID); err != nil {
		return err
	}

	bookmark := b.sf.state.Get(b.stream.ID())
	bookmark.SetProgress(&types.ExtractionProgress{JobID: jobID})
	logger.LogState(b.sf.state)

	batchIDs, err := b.pollBatches(ctx, jobID, initialBatchID)
	if err != nil {
		return b.sf.classifyQueryError(err)
	}

	bookmark.SetProgress(&types.ExtractionProgress{JobID: jobID, BatchIDs: batchIDs})
	logger.LogState(b.sf.state)

	for _, batchID := range batchIDs {
		if err := b.drainBatch(ctx, jobID, batchID, onRecord); err != nil {
			return b.sf.classifyQueryError(err)
		}
		checkpoint(batchID)
	}

	b.sf.mu.Lock()
	b.sf.jobsDone++
	b.sf.mu.Unlock()
	return nil
}

// Resume drains the batch list persisted by an interrupted run. The stored
// list is authoritative: batches drained before the crash are not listed and
// are never reprocessed.
func (b *bulkExtractor) Resume(ctx context.Context, progress *types.ExtractionProgress, onRecord abstract.RecordFn, checkpoint abstract.CheckpointFn) error {
	exists, err := b.jobExists(ctx, progress.JobID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("job %s: %w", progress.JobID, constants.ErrStaleJob)
	}

	for _, batchID := range progress.BatchIDs {
		if err := b.drainBatch(ctx, progress.JobID, batchID, onRecord); err != nil {
			return b.sf.classifyQueryError(err)
		}
		checkpoint(batchID)
	}

	b.sf.mu.Lock()
	b.sf.jobsDone++
	b.sf.mu.Unlock()
	return nil
}

func (b *bulkExtractor) createJob(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"operation":   "queryAll",
		"object":      b.stream.Name(),
		"contentType": "CSV",
	})
	if err != nil {
		return "", err
	}

	headers := b.sf.bulkHeaders()
	if b.sf.config.PKChunking {
		logger.Info("Enabling primary key chunking")
		headers[pkChunkingHeader] = fmt.Sprintf("chunkSize=%d", pkChunkSize)
	}

	data, err := b.sf.request(ctx, http.MethodPost, b.sf.bulkURL("job"), headers, body)
	if err != nil {
		return "", err
	}

	job := struct {
		ID string `json:"id"`
	}{}
	if err := json.Unmarshal(data, &job); err != nil {
		return "", fmt.Errorf("failed to parse job response: %s", err)
	}
	return job.ID, nil
}

func (b *bulkExtractor) addBatch(ctx context.Context, jobID, query string) (string, error) {
	headers := b.sf.bulkHeaders()
	headers["Content-Type"] = "text/csv"

	data, err := b.sf.request(ctx, http.MethodPost, b.sf.bulkURL(fmt.Sprintf("job/%s/batch", jobID)), headers, []byte(query))
	if err != nil {
		return "", err
	}

	batch := batchInfo{}
	if err := xml.Unmarshal(data, &batch); err != nil {
		return "", fmt.Errorf("failed to parse batch response: %s", err)
	}
	return batch.ID, nil
}

func (b *bulkExtractor) closeJob(ctx context.Context, jobID string) error {
	body, err := json.Marshal(map[string]string{"state": "Closed"})
	if err != nil {
		return err
	}
	_, err = b.sf.request(ctx, http.MethodPost, b.sf.bulkURL(fmt.Sprintf("job/%s", jobID)), b.sf.bulkHeaders(), body)
	return err
}

func (b *bulkExtractor) jobExists(ctx context.Context, jobID string) (bool, error) {
	resp, err := b.sf.do(ctx, http.MethodGet, b.sf.bulkURL(fmt.Sprintf("job/%s", jobID)), b.sf.bulkHeaders(), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode < http.StatusMultipleChoices:
		return true, nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("job status check failed with status %d", resp.StatusCode)
	}
}

// pollBatches waits for the job's batches on an exponential backoff schedule.
// With primary key chunking the initial batch becomes the parent and is never
// processed; its children carry the data. Without chunking the single batch
// is polled to a terminal state.
func (b *bulkExtractor) pollBatches(ctx context.Context, jobID, initialBatchID string) ([]string, error) {
	sleep := constants.DefaultPollInterval

	for {
		batches, err := b.listBatches(ctx, jobID)
		if err != nil {
			return nil, err
		}

		pending := false
		completed := []string{}
		for _, batch := range batches {
			switch batch.State {
			case batchStateQueued, batchStateInProgress:
				pending = true
			case batchStateFailed:
				return nil, fmt.Errorf("batch %s of job %s failed: %s", batch.ID, jobID, batch.StateMessage)
			case batchStateNotProcessed:
				if !b.sf.config.PKChunking || batch.ID != initialBatchID {
					return nil, fmt.Errorf("batch %s of job %s was not processed", batch.ID, jobID)
				}
			case batchStateCompleted:
				completed = append(completed, batch.ID)
			}
		}

		if !pending {
			return completed, nil
		}

		logger.Debugf("Waiting %s for job %s batches to complete", sleep, jobID)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
			if sleep *= 2; sleep > constants.MaxPollInterval {
				sleep = constants.MaxPollInterval
			}
		}
	}
}

func (b *bulkExtractor) listBatches(ctx context.Context, jobID string) ([]batchInfo, error) {
	data, err := b.sf.request(ctx, http.MethodGet, b.sf.bulkURL(fmt.Sprintf("job/%s/batch", jobID)), b.sf.bulkHeaders(), nil)
	if err != nil {
		return nil, err
	}

	list := batchInfoList{}
	if err := xml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse batch list: %s", err)
	}
	return list.Batches, nil
}

// drainBatch streams one batch's CSV results through the record callback.
func (b *bulkExtractor) drainBatch(ctx context.Context, jobID, batchID string, onRecord abstract.RecordFn) error {
	data, err := b.sf.request(ctx, http.MethodGet, b.sf.bulkURL(fmt.Sprintf("job/%s/batch/%s/result", jobID, batchID)), b.sf.bulkHeaders(), nil)
	if err != nil {
		return err
	}

	results := resultIDList{}
	if err := xml.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("failed to parse result list: %s", err)
	}

	for _, resultID := range results.Results {
		if err := b.drainResult(ctx, jobID, batchID, resultID, onRecord); err != nil {
			return err
		}
	}
	return nil
}

func (b *bulkExtractor) drainResult(ctx context.Context, jobID, batchID, resultID string, onRecord abstract.RecordFn) error {
	url := b.sf.bulkURL(fmt.Sprintf("job/%s/batch/%s/result/%s", jobID, batchID, resultID))
	body, err := b.sf.requestStream(ctx, http.MethodGet, url, b.sf.bulkHeaders())
	if err != nil {
		return err
	}
	defer body.Close()

	reader := csv.NewReader(body)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read result header: %s", err)
	}
	if len(header) == 1 && header[0] == "Records not found for this query" {
		return nil
	}

	columns := append([]string{}, header...)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read result row: %s", err)
		}

		record := make(types.Record, len(columns))
		for idx, column := range columns {
			if idx < len(row) {
				record[column] = row[idx]
			}
		}
		if err := onRecord(record); err != nil {
			return err
		}
	}
}
