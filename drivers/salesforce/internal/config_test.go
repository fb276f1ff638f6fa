package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamorph-io/forcetap/constants"
)

func validConfig() *Config {
	return &Config{
		RefreshToken: "token",
		ClientID:     "client",
		ClientSecret: "secret",
		StartDate:    "2023-01-01T00:00:00Z",
		APIType:      "bulk",
		SourceType:   SourceTypeObject,
		ObjectName:   "Account",
	}
}

func TestConfigValidate(t *testing.T) {
	config := validConfig()
	require.NoError(t, config.Validate())

	assert.Equal(t, BulkAPI, config.APIType)
	assert.Equal(t, 2023, config.StartDate().Year())
	assert.Equal(t, float64(constants.DefaultQuotaPercentTotal), *config.QuotaPercentTotal)
	assert.Equal(t, float64(constants.DefaultQuotaPercentPerRun), *config.QuotaPercentPerRun)
}

func TestConfigValidateKeepsQuotaOverrides(t *testing.T) {
	total, perRun := 50.0, 10.0
	config := validConfig()
	config.QuotaPercentTotal = &total
	config.QuotaPercentPerRun = &perRun

	require.NoError(t, config.Validate())
	assert.Equal(t, 50.0, *config.QuotaPercentTotal)
	assert.Equal(t, 10.0, *config.QuotaPercentPerRun)
}

func TestConfigValidateReport(t *testing.T) {
	config := validConfig()
	config.SourceType = SourceTypeReport
	config.ObjectName = ""
	config.ReportID = "00O123"

	require.NoError(t, config.Validate())
}

func TestConfigValidateErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing refresh token", func(c *Config) { c.RefreshToken = "" }},
		{"missing client id", func(c *Config) { c.ClientID = "" }},
		{"unknown api type", func(c *Config) { c.APIType = "SOAP" }},
		{"unknown source type", func(c *Config) { c.SourceType = "dashboard" }},
		{"object without name", func(c *Config) { c.ObjectName = "" }},
		{"report without id", func(c *Config) { c.SourceType = SourceTypeReport }},
		{"unparseable start date", func(c *Config) { c.StartDate = "yesterday" }},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			config := validConfig()
			test.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}
