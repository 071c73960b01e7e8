package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/syssam/dsr"
)

// StorageType is the kind of destination receiving access results.
type StorageType string

// Storage types with details validation.
const (
	StorageS3       StorageType = "s3"
	StorageOneTrust StorageType = "onetrust"
	StorageLocal    StorageType = "local"
)

// ResponseFormat is the encoding of uploaded access results.
type ResponseFormat string

// Response formats.
const (
	FormatJSON ResponseFormat = "json"
	FormatCSV  ResponseFormat = "csv"
)

// StorageDestination is where the results of access requests are uploaded.
// Delivery is handled outside of this module; only the declaration is
// validated.
type StorageDestination struct {
	Key     string         `yaml:"key,omitempty"`
	Name    string         `yaml:"name"`
	Type    StorageType    `yaml:"type"`
	Format  ResponseFormat `yaml:"format,omitempty"`
	Details map[string]any `yaml:"details"`
}

// S3Details are the details of an s3 destination.
type S3Details struct {
	Bucket     string `yaml:"bucket"`
	ObjectName string `yaml:"object_name"`
	Naming     string `yaml:"naming,omitempty"`
	MaxRetries int    `yaml:"max_retries,omitempty"`
}

// OneTrustDetails are the details of a onetrust destination.
type OneTrustDetails struct {
	ServiceName string `yaml:"service_name"`
	PollingHour *int   `yaml:"onetrust_polling_hr"`
	PollingDay  *int   `yaml:"onetrust_polling_day_of_week"`
}

// LocalDetails are the details of a local destination.
type LocalDetails struct {
	Naming string `yaml:"naming,omitempty"`
}

// Validate checks the details required by the destination type and the
// format it accepts. All problems are reported together.
func (s *StorageDestination) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, dsr.Validationf("name", "field required"))
	}
	switch s.Format {
	case "", FormatJSON, FormatCSV:
	default:
		errs = append(errs, dsr.Validationf("format", "unknown format %q", s.Format))
	}
	switch s.Type {
	case "":
		errs = append(errs, dsr.Validationf("type", "a type must be specified"))
	case StorageS3:
		var d S3Details
		if err := decodeDetails(s.Details, &d); err != nil {
			errs = append(errs, dsr.NewValidationError("details", err))
			break
		}
		if d.Bucket == "" {
			errs = append(errs, dsr.Validationf("details.bucket", "field required"))
		}
		if d.ObjectName == "" {
			errs = append(errs, dsr.Validationf("details.object_name", "field required"))
		}
		if d.MaxRetries < 0 {
			errs = append(errs, dsr.Validationf("details.max_retries", "must not be negative"))
		}
	case StorageOneTrust:
		var d OneTrustDetails
		if err := decodeDetails(s.Details, &d); err != nil {
			errs = append(errs, dsr.NewValidationError("details", err))
			break
		}
		if d.ServiceName == "" {
			errs = append(errs, dsr.Validationf("details.service_name", "field required"))
		}
		switch {
		case d.PollingHour == nil:
			errs = append(errs, dsr.Validationf("details.onetrust_polling_hr", "field required"))
		case *d.PollingHour < 0 || *d.PollingHour > 23:
			errs = append(errs, dsr.Validationf("details.onetrust_polling_hr", "must be between 0 and 23"))
		}
		switch {
		case d.PollingDay == nil:
			errs = append(errs, dsr.Validationf("details.onetrust_polling_day_of_week", "field required"))
		case *d.PollingDay < 0 || *d.PollingDay > 6:
			errs = append(errs, dsr.Validationf("details.onetrust_polling_day_of_week", "must be between 0 and 6"))
		}
	case StorageLocal:
		var d LocalDetails
		if err := decodeDetails(s.Details, &d); err != nil {
			errs = append(errs, dsr.NewValidationError("details", err))
		}
	default:
		errs = append(errs, dsr.Validationf("type", "storage type %s has no supported details validation", s.Type))
	}
	if (s.Type == StorageOneTrust || s.Type == StorageLocal) && s.Format == FormatCSV {
		errs = append(errs, dsr.Validationf("format", "only JSON upload format is supported for %s storage", s.Type))
	}
	return dsr.NewAggregateError(errs...)
}

// decodeDetails copies the details map into a typed struct. Unknown keys
// are rejected.
func decodeDetails(details map[string]any, out any) error {
	if details == nil {
		details = map[string]any{}
	}
	b, err := yaml.Marshal(details)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid details: %w", err)
	}
	return nil
}
