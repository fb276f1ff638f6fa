package driver

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/datamorph-io/forcetap/constants"
	"github.com/datamorph-io/forcetap/types"
	"github.com/datamorph-io/forcetap/utils/logger"
)

const limitInfoHeader = "Sforce-Limit-Info"

var quotaRegex = regexp.MustCompile(`^api-usage=(\d+)/(\d+)$`)

// quotaSnapshot is derived from the most recent response only; it is never
// persisted.
type quotaSnapshot struct {
	Used     int
	Allotted int
}

func parseQuota(header string) (quotaSnapshot, bool) {
	match := quotaRegex.FindStringSubmatch(header)
	if match == nil {
		return quotaSnapshot{}, false
	}

	used, _ := strconv.Atoi(match[1])
	allotted, _ := strconv.Atoi(match[2])
	return quotaSnapshot{Used: used, Allotted: allotted}, true
}

// checkQuota enforces the two quota limits after every response carrying a
// usage header. The run's call counter is incremented before the check so
// the per-run limit is enforced strictly.
func (s *Salesforce) checkQuota(headers http.Header) error {
	snapshot, found := parseQuota(headers.Get(limitInfoHeader))
	if !found {
		return nil
	}

	s.mu.Lock()
	s.restCalls++
	restCalls := s.restCalls
	s.mu.Unlock()

	logger.Infof("Used %d of %d daily REST API quota", snapshot.Used, snapshot.Allotted)

	percentUsedOfTotal := float64(snapshot.Used) / float64(snapshot.Allotted) * 100
	maxCallsThisRun := int(*s.config.QuotaPercentPerRun * float64(snapshot.Allotted) / 100)

	if percentUsedOfTotal > *s.config.QuotaPercentTotal {
		message := fmt.Sprintf("Salesforce has reported %d/%d (%3.2f%%) total REST quota "+
			"used across all Salesforce Applications. Terminating "+
			"replication to not continue past the configured percentage "+
			"of %v%% total quota.", snapshot.Used, snapshot.Allotted, percentUsedOfTotal, *s.config.QuotaPercentTotal)
		return types.NewClassifiedErrorWrap(ErrCodeAPIError, message, constants.ErrQuotaExceeded)
	}

	if restCalls > maxCallsThisRun {
		message := fmt.Sprintf("This replication job has made %d REST requests (%3.2f%% of "+
			"total quota). Terminating replication due to allotted "+
			"quota of %v%% per replication.", restCalls,
			float64(restCalls)/float64(snapshot.Allotted)*100, *s.config.QuotaPercentPerRun)
		return types.NewClassifiedErrorWrap(ErrCodeAPIError, message, constants.ErrQuotaExceeded)
	}

	return nil
}
