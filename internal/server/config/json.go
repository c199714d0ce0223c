package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dsantanna/biolock/internal/biometric"
	"github.com/dsantanna/biolock/internal/flagx"
	"github.com/dsantanna/biolock/internal/timex"
)

// JsonPolicy mirrors biometric.Policy for JSON unmarshalling.
type JsonPolicy struct {
	SimilarityThreshold   *float64 `json:"similarity_threshold"`
	MinMatchCount         *int     `json:"min_match_count"`
	MinEnrollmentFeatures *int     `json:"min_enrollment_features"`
	MinLoginFeatures      *int     `json:"min_login_features"`
}

// JsonConfig is an intermediate DTO used only for reading JSON configuration
// files. Interval fields use timex.Duration, which accepts both strings such
// as "25m" and integer nanoseconds. Absent fields keep their current values.
type JsonConfig struct {
	EndpointAddrHTTP *string `json:"endpoint_addr_http"`
	DatabaseDSN      *string `json:"database_dsn"`

	AccessTokenSecret  *string `json:"access_token_secret"`
	RefreshTokenSecret *string `json:"refresh_token_secret"`
	TemplateSecret     *string `json:"template_secret"`

	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	TemplateValidityDuration     *timex.Duration `json:"template_validity_duration"`

	Extractor         *string         `json:"extractor"`
	ExtractionTimeout *timex.Duration `json:"extraction_timeout"`
	SIFTPython        *string         `json:"sift_python"`
	SIFTScript        *string         `json:"sift_script"`
	RatioThreshold    *float64        `json:"ratio_threshold"`

	HistogramPolicy *JsonPolicy `json:"histogram_policy"`
	SIFTPolicy      *JsonPolicy `json:"sift_policy"`

	S3RootUser     *string `json:"s3_root_user"`
	S3RootPassword *string `json:"s3_root_password"`
	S3Bucket       *string `json:"s3_bucket"`
	S3Region       *string `json:"s3_region"`
	S3BaseEndpoint *string `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c/-config flags; if neither
// is set, no JSON file is loaded. Unreadable or invalid files panic, since
// a half-applied configuration is worse than a crash at startup.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		panic(err)
	}

	applyString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	applyString(&config.DatabaseDSN, c.DatabaseDSN)
	applyString(&config.AccessTokenSecret, c.AccessTokenSecret)
	applyString(&config.RefreshTokenSecret, c.RefreshTokenSecret)
	applyString(&config.TemplateSecret, c.TemplateSecret)

	applyDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	applyDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	applyDuration(&config.TemplateValidityDuration, c.TemplateValidityDuration)
	applyDuration(&config.ExtractionTimeout, c.ExtractionTimeout)

	applyString(&config.Extractor, c.Extractor)
	applyString(&config.SIFTPython, c.SIFTPython)
	applyString(&config.SIFTScript, c.SIFTScript)
	if c.RatioThreshold != nil {
		config.RatioThreshold = *c.RatioThreshold
	}

	applyPolicy(&config.HistogramPolicy, c.HistogramPolicy)
	applyPolicy(&config.SIFTPolicy, c.SIFTPolicy)

	applyString(&config.S3RootUser, c.S3RootUser)
	applyString(&config.S3RootPassword, c.S3RootPassword)
	applyString(&config.S3Bucket, c.S3Bucket)
	applyString(&config.S3Region, c.S3Region)
	applyString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func applyDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}

func applyPolicy(dst *biometric.Policy, src *JsonPolicy) {
	if src == nil {
		return
	}
	if src.SimilarityThreshold != nil {
		dst.SimilarityThreshold = *src.SimilarityThreshold
	}
	if src.MinMatchCount != nil {
		dst.MinMatchCount = *src.MinMatchCount
	}
	if src.MinEnrollmentFeatures != nil {
		dst.MinEnrollmentFeatures = *src.MinEnrollmentFeatures
	}
	if src.MinLoginFeatures != nil {
		dst.MinLoginFeatures = *src.MinLoginFeatures
	}
}
