package driver

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/datamorph-io/forcetap/constants"
	"github.com/datamorph-io/forcetap/types"
	"github.com/datamorph-io/forcetap/utils"
	"github.com/datamorph-io/forcetap/utils/typeutils"
)

const (
	BulkAPI = "BULK"
	RestAPI = "REST"

	SourceTypeObject = "object"
	SourceTypeReport = "report"
)

type Config struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`
	IsSandbox    bool   `json:"is_sandbox,omitempty"`

	StartDate string `json:"start_date" validate:"required"`
	APIType   string `json:"api_type" validate:"required"`

	// SourceType selects between extracting a CRM object and a report
	SourceType string `json:"source_type" validate:"required,oneof=object report"`
	ObjectName string `json:"object_name,omitempty"`
	ReportID   string `json:"report_id,omitempty"`

	SelectFieldsByDefault bool              `json:"select_fields_by_default,omitempty"`
	QuotaPercentTotal     *float64          `json:"quota_percent_total,omitempty"`
	QuotaPercentPerRun    *float64          `json:"quota_percent_per_run,omitempty"`
	PKChunking            bool              `json:"pk_chunking,omitempty"`
	Filter                *types.FilterNode `json:"filters,omitempty"`
	ErrorFilePath         string            `json:"error_file_path,omitempty"`

	startDate time.Time
}

func (c *Config) Validate() error {
	if err := utils.Validate(c); err != nil {
		return err
	}

	c.APIType = strings.ToUpper(c.APIType)
	if c.APIType != BulkAPI && c.APIType != RestAPI {
		return fmt.Errorf("api_type should be REST or BULK was: %s", c.APIType)
	}

	switch c.SourceType {
	case SourceTypeObject:
		if c.ObjectName == "" {
			return fmt.Errorf("object_name is required when source_type is object")
		}
	case SourceTypeReport:
		if c.ReportID == "" {
			return fmt.Errorf("report_id is required when source_type is report")
		}
	}

	parsed, err := typeutils.ParseTimestamp(c.StartDate)
	if err != nil {
		return fmt.Errorf("invalid start_date: %s", err)
	}
	c.startDate = parsed

	if c.QuotaPercentTotal == nil {
		total := float64(constants.DefaultQuotaPercentTotal)
		c.QuotaPercentTotal = &total
	}
	if c.QuotaPercentPerRun == nil {
		perRun := float64(constants.DefaultQuotaPercentPerRun)
		c.QuotaPercentPerRun = &perRun
	}

	if c.ErrorFilePath != "" {
		viper.Set(constants.ErrorFilePath, c.ErrorFilePath)
	}

	return nil
}

func (c *Config) StartDate() time.Time {
	return c.startDate
}
