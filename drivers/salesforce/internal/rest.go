package driver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/datamorph-io/forcetap/constants"
	"github.com/datamorph-io/forcetap/drivers/abstract"
	"github.com/datamorph-io/forcetap/types"
)

// restExtractor runs a synchronous query and pages through the results.
// Rows come back ordered by the replication key, so the bookmark advances
// per record.
type restExtractor struct {
	sf     *Salesforce
	stream types.StreamInterface
}

func (r *restExtractor) Chunked() bool {
	return false
}

func (r *restExtractor) Extract(ctx context.Context, startDate time.Time, onRecord abstract.RecordFn, _ abstract.CheckpointFn) error {
	fields := r.stream.SelectedFields(r.sf.config.SelectFieldsByDefault)
	query, err := buildQuery(r.stream, fields, startDate, nil, r.sf.config.Filter, true)
	if err != nil {
		return err
	}

	next := r.sf.dataURL(fmt.Sprintf("queryAll/?q=%s", url.QueryEscape(query)))
	for next != "" {
		data, err := r.sf.request(ctx, http.MethodGet, next, r.sf.standardHeaders(), nil)
		if err != nil {
			return r.sf.classifyQueryError(err)
		}

		page := struct {
			Done           bool           `json:"done"`
			NextRecordsURL string         `json:"nextRecordsUrl"`
			Records        []types.Record `json:"records"`
		}{}
		if err := json.Unmarshal(data, &page); err != nil {
			return fmt.Errorf("failed to parse query response: %s", err)
		}

		for _, record := range page.Records {
			if err := onRecord(record); err != nil {
				return err
			}
		}

		if page.Done || page.NextRecordsURL == "" {
			break
		}
		next = r.sf.instanceBase() + page.NextRecordsURL
	}

	return nil
}

func (r *restExtractor) Resume(_ context.Context, progress *types.ExtractionProgress, _ abstract.RecordFn, _ abstract.CheckpointFn) error {
	return fmt.Errorf("synchronous extraction cannot resume job %s: %w", progress.JobID, constants.ErrStaleJob)
}
