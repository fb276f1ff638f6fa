package driver

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/datamorph-io/forcetap/constants"
	"github.com/datamorph-io/forcetap/drivers/abstract"
	"github.com/datamorph-io/forcetap/types"
)

// reportExtractor runs a report through the analytics query endpoint and
// flattens the detail rows into records. Reports have no replication key and
// always refresh fully.
type reportExtractor struct {
	sf     *Salesforce
	stream types.StreamInterface
}

func (r *reportExtractor) Chunked() bool {
	return false
}

type reportCell struct {
	Label string          `json:"label"`
	Value json.RawMessage `json:"value"`
}

type reportRow struct {
	DataCells []reportCell `json:"dataCells"`
}

type reportQueryResponse struct {
	FactMap map[string]struct {
		Rows []reportRow `json:"rows"`
	} `json:"factMap"`
	ReportMetadata struct {
		DetailColumns []string `json:"detailColumns"`
	} `json:"reportMetadata"`
	ReportExtendedMetadata struct {
		DetailColumnInfo map[string]reportColumn `json:"detailColumnInfo"`
	} `json:"reportExtendedMetadata"`
}

func (r *reportExtractor) Extract(ctx context.Context, _ time.Time, onRecord abstract.RecordFn, _ abstract.CheckpointFn) error {
	if r.stream.ID() != r.sf.config.ReportID {
		return fmt.Errorf("report_id in the stream should match the report_id in the config")
	}

	// the query endpoint reruns the report from its stored metadata
	describeData, err := r.sf.request(ctx, http.MethodGet, r.sf.dataURL(fmt.Sprintf("analytics/reports/%s/describe", r.sf.config.ReportID)), r.sf.standardHeaders(), nil)
	if err != nil {
		return r.sf.classifyQueryError(err)
	}

	described := struct {
		ReportMetadata json.RawMessage `json:"reportMetadata"`
	}{}
	if err := json.Unmarshal(describeData, &described); err != nil {
		return fmt.Errorf("failed to parse report describe response: %s", err)
	}

	body := append([]byte(`{"reportMetadata":`), described.ReportMetadata...)
	body = append(body, '}')

	headers := r.sf.standardHeaders()
	headers["Content-Type"] = "application/json"

	data, err := r.sf.request(ctx, http.MethodPost, r.sf.dataURL("analytics/reports/query"), headers, body)
	if err != nil {
		return r.sf.classifyQueryError(err)
	}

	response := &reportQueryResponse{}
	if err := json.Unmarshal(data, response); err != nil {
		return fmt.Errorf("failed to parse report query response: %s", err)
	}

	// the T!T cell holds the detail rows; it only exists when the report's
	// Detail Rows toggle is on
	detail, found := response.FactMap["T!T"]
	if !found || detail.Rows == nil {
		return fmt.Errorf("the report response is missing the rows feature in factMap, check that the Detail Rows toggle is true in the report settings")
	}

	columns := response.ReportMetadata.DetailColumns
	columnInfo := response.ReportExtendedMetadata.DetailColumnInfo

	for _, row := range detail.Rows {
		record, err := flattenReportRow(row, columns, columnInfo)
		if err != nil {
			return err
		}
		if err := onRecord(record); err != nil {
			return err
		}
	}
	return nil
}

func (r *reportExtractor) Resume(_ context.Context, progress *types.ExtractionProgress, _ abstract.RecordFn, _ abstract.CheckpointFn) error {
	return fmt.Errorf("report extraction cannot resume job %s: %w", progress.JobID, constants.ErrStaleJob)
}

// flattenReportRow maps one detail row onto the discovered columns. A null
// value flattens to an empty string since the label may render as "-"; date
// values keep the machine value over the display label; currency values
// split into amount and ISO code.
func flattenReportRow(row reportRow, columns []string, columnInfo map[string]reportColumn) (types.Record, error) {
	record := types.Record{}

	for idx, cell := range row.DataCells {
		if idx >= len(columns) {
			break
		}
		column := columns[idx]

		if len(cell.Value) == 0 || bytes.Equal(cell.Value, []byte("null")) {
			record[column] = ""
			continue
		}

		switch columnInfo[column].DataType {
		case "date", "datetime":
			var value any
			if err := json.Unmarshal(cell.Value, &value); err != nil {
				return nil, fmt.Errorf("failed to parse report cell for column %s: %s", column, err)
			}
			record[column] = value
		case "currency":
			money := struct {
				Amount   any    `json:"amount"`
				Currency string `json:"currency"`
			}{}
			if err := json.Unmarshal(cell.Value, &money); err != nil {
				return nil, fmt.Errorf("failed to parse report currency cell for column %s: %s", column, err)
			}
			record[column+" Currency"] = money.Currency
			record[column] = money.Amount
		default:
			record[column] = cell.Label
		}
	}

	return record, nil
}
