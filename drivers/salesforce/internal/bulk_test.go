package driver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamorph-io/forcetap/constants"
	"github.com/datamorph-io/forcetap/types"
)

func bulkTestStream() types.StreamInterface {
	return testStream("Account", "SystemModstamp",
		[2]string{"Id", "id"},
		[2]string{"Name", "string"},
		[2]string{"SystemModstamp", "datetime"},
	)
}

func TestBulkExtract(t *testing.T) {
	var submittedQuery string
	var sawChunkingHeader bool

	mux := http.NewServeMux()
	mux.HandleFunc("/services/async/52.0/job", func(w http.ResponseWriter, r *http.Request) {
		sawChunkingHeader = r.Header.Get(pkChunkingHeader) != ""
		fmt.Fprint(w, `{"id":"750A"}`)
	})
	mux.HandleFunc("/services/async/52.0/job/750A", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"750A","state":"Closed"}`)
	})
	mux.HandleFunc("/services/async/52.0/job/750A/batch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			submittedQuery = string(body)
			fmt.Fprint(w, `<?xml version="1.0"?><batchInfo><id>751B</id><state>Queued</state></batchInfo>`)
			return
		}
		fmt.Fprint(w, `<?xml version="1.0"?><batchInfoList><batchInfo><id>751B</id><state>Completed</state></batchInfo></batchInfoList>`)
	})
	mux.HandleFunc("/services/async/52.0/job/750A/batch/751B/result", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><result-list><result>752R</result></result-list>`)
	})
	mux.HandleFunc("/services/async/52.0/job/750A/batch/751B/result/752R", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Id,Name,SystemModstamp\n001,Acme,2023-01-05T00:00:00.000Z\n002,Globex,2023-01-06T00:00:00.000Z\n")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := newTestSalesforce(t, server.URL, &Config{
		APIType:               BulkAPI,
		SourceType:            SourceTypeObject,
		ObjectName:            "Account",
		SelectFieldsByDefault: true,
	})
	extractor := &bulkExtractor{sf: s, stream: bulkTestStream()}

	records := []types.Record{}
	checkpoints := []string{}
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	err := extractor.Extract(context.Background(), start,
		func(record types.Record) error { records = append(records, record); return nil },
		func(batchID string) { checkpoints = append(checkpoints, batchID) })
	require.NoError(t, err)

	assert.Equal(t, "SELECT Id,Name,SystemModstamp FROM Account WHERE SystemModstamp >= 2023-01-01T00:00:00.000000Z", submittedQuery)
	assert.False(t, sawChunkingHeader)

	require.Len(t, records, 2)
	assert.Equal(t, "Acme", records[0]["Name"])
	assert.Equal(t, "002", records[1]["Id"])
	assert.Equal(t, []string{"751B"}, checkpoints)
	assert.Equal(t, 1, s.jobsDone)

	progress := s.state.Get("Account").Progress()
	require.NotNil(t, progress)
	assert.Equal(t, "750A", progress.JobID)
}

func TestBulkExtractPKChunkingHeader(t *testing.T) {
	var header string
	mux := http.NewServeMux()
	mux.HandleFunc("/services/async/52.0/job", func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get(pkChunkingHeader)
		fmt.Fprint(w, `{"id":"750A"}`)
	})
	mux.HandleFunc("/services/async/52.0/job/750A", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/services/async/52.0/job/750A/batch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `<?xml version="1.0"?><batchInfo><id>751P</id><state>Queued</state></batchInfo>`)
			return
		}
		// the submitted batch becomes the chunking parent and is skipped
		fmt.Fprint(w, `<?xml version="1.0"?><batchInfoList>
			<batchInfo><id>751P</id><state>Not Processed</state></batchInfo>
			<batchInfo><id>751C</id><state>Completed</state></batchInfo>
		</batchInfoList>`)
	})
	mux.HandleFunc("/services/async/52.0/job/750A/batch/751C/result", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><result-list><result>752R</result></result-list>`)
	})
	mux.HandleFunc("/services/async/52.0/job/750A/batch/751C/result/752R", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Id\n001\n")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := newTestSalesforce(t, server.URL, &Config{
		APIType:               BulkAPI,
		SourceType:            SourceTypeObject,
		ObjectName:            "Account",
		SelectFieldsByDefault: true,
		PKChunking:            true,
	})
	extractor := &bulkExtractor{sf: s, stream: bulkTestStream()}

	records := []types.Record{}
	err := extractor.Extract(context.Background(), time.Now().UTC(),
		func(record types.Record) error { records = append(records, record); return nil },
		func(string) {})
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("chunkSize=%d", pkChunkSize), header)
	assert.Len(t, records, 1)
}

func TestBulkExtractFailedBatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/services/async/52.0/job", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"750A"}`)
	})
	mux.HandleFunc("/services/async/52.0/job/750A", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/services/async/52.0/job/750A/batch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `<?xml version="1.0"?><batchInfo><id>751B</id><state>Queued</state></batchInfo>`)
			return
		}
		fmt.Fprint(w, `<?xml version="1.0"?><batchInfoList><batchInfo><id>751B</id><state>Failed</state><stateMessage>InvalidBatch: field Name not queryable</stateMessage></batchInfo></batchInfoList>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := newTestSalesforce(t, server.URL, &Config{
		APIType:               BulkAPI,
		SourceType:            SourceTypeObject,
		ObjectName:            "Account",
		SelectFieldsByDefault: true,
	})
	extractor := &bulkExtractor{sf: s, stream: bulkTestStream()}

	err := extractor.Extract(context.Background(), time.Now().UTC(),
		func(types.Record) error { return nil }, func(string) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidBatch")
}

func TestBulkResume(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/services/async/52.0/job/750A", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"750A","state":"Closed"}`)
	})
	mux.HandleFunc("/services/async/52.0/job/750A/batch/751B/result", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><result-list><result>752R</result></result-list>`)
	})
	mux.HandleFunc("/services/async/52.0/job/750A/batch/751B/result/752R", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Id,Name,SystemModstamp\n003,Initech,2023-01-07T00:00:00.000Z\n")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := newTestSalesforce(t, server.URL, &Config{APIType: BulkAPI, SourceType: SourceTypeObject, ObjectName: "Account"})
	extractor := &bulkExtractor{sf: s, stream: bulkTestStream()}

	records := []types.Record{}
	checkpoints := []string{}
	progress := &types.ExtractionProgress{JobID: "750A", BatchIDs: []string{"751B"}}

	err := extractor.Resume(context.Background(), progress,
		func(record types.Record) error { records = append(records, record); return nil },
		func(batchID string) { checkpoints = append(checkpoints, batchID) })
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "Initech", records[0]["Name"])
	assert.Equal(t, []string{"751B"}, checkpoints)
}

func TestBulkResumeStaleJob(t *testing.T) {
	// unregistered routes answer 404, matching a purged job
	server := httptest.NewServer(http.NewServeMux())
	defer server.Close()

	s := newTestSalesforce(t, server.URL, &Config{APIType: BulkAPI, SourceType: SourceTypeObject, ObjectName: "Account"})
	extractor := &bulkExtractor{sf: s, stream: bulkTestStream()}

	progress := &types.ExtractionProgress{JobID: "750A", BatchIDs: []string{"751B"}}
	err := extractor.Resume(context.Background(), progress,
		func(types.Record) error { return nil }, func(string) {})
	assert.ErrorIs(t, err, constants.ErrStaleJob)
}

func TestDrainResultEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/services/async/52.0/job/750A/batch/751B/result/752R", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Records not found for this query\n")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := newTestSalesforce(t, server.URL, &Config{APIType: BulkAPI, SourceType: SourceTypeObject, ObjectName: "Account"})
	extractor := &bulkExtractor{sf: s, stream: bulkTestStream()}

	count := 0
	err := extractor.drainResult(context.Background(), "750A", "751B", "752R",
		func(types.Record) error { count++; return nil })
	require.NoError(t, err)
	assert.Zero(t, count)
}
