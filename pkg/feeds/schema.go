package feeds

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/sitepulse/pkg/domain/finance"
	"github.com/xeipuuv/gojsonschema"
)

// bundleSchemaJSON describes a feed bundle document. Feeds are optional and
// may be null; only the job ID is required.
const bundleSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["jobId"],
  "definitions": {
    "number": {"type": ["number", "null"]},
    "date": {"type": ["string", "null"]},
    "list": {"type": ["array", "null"]}
  },
  "properties": {
    "jobId": {"type": "string", "minLength": 1},
    "job": {
      "type": ["object", "null"],
      "properties": {
        "id": {"type": "string"},
        "name": {"type": "string"},
        "contractValue": {"$ref": "#/definitions/number"},
        "overallProgress": {"$ref": "#/definitions/number"},
        "plannedStartDate": {"$ref": "#/definitions/date"},
        "plannedEndDate": {"$ref": "#/definitions/date"},
        "startDate": {"$ref": "#/definitions/date"},
        "endDate": {"$ref": "#/definitions/date"}
      }
    },
    "evm": {
      "type": ["object", "null"],
      "properties": {
        "totals": {
          "type": ["object", "null"],
          "properties": {
            "cpi": {"$ref": "#/definitions/number"},
            "costVariance": {"$ref": "#/definitions/number"},
            "actualCost": {"$ref": "#/definitions/number"},
            "earnedValue": {"$ref": "#/definitions/number"}
          }
        }
      }
    },
    "apRegister": {
      "type": ["object", "null"],
      "properties": {
        "data": {
          "type": ["array", "null"],
          "items": {
            "type": "object",
            "properties": {
              "invoiceDate": {"$ref": "#/definitions/date"},
              "amount": {"$ref": "#/definitions/number"},
              "paidAmount": {"$ref": "#/definitions/number"}
            }
          }
        },
        "meta": {
          "type": ["object", "null"],
          "properties": {
            "totalAmount": {"$ref": "#/definitions/number"},
            "paidAmount": {"$ref": "#/definitions/number"}
          }
        }
      }
    },
    "timelog": {
      "type": ["object", "null"],
      "properties": {
        "data": {
          "type": ["array", "null"],
          "items": {
            "type": "object",
            "properties": {
              "workDate": {"$ref": "#/definitions/date"},
              "totalHours": {"$ref": "#/definitions/number"},
              "totalCost": {"$ref": "#/definitions/number"},
              "totalCostWithBurden": {"$ref": "#/definitions/number"},
              "safetyIncidents": {"$ref": "#/definitions/list"}
            }
          }
        },
        "meta": {
          "type": ["object", "null"],
          "properties": {
            "totalHours": {"$ref": "#/definitions/number"}
          }
        }
      }
    },
    "sov": {
      "type": ["object", "null"],
      "properties": {
        "data": {
          "type": ["object", "null"],
          "properties": {
            "summary": {
              "type": ["object", "null"],
              "properties": {
                "totalValue": {"$ref": "#/definitions/number"}
              }
            }
          }
        }
      }
    },
    "progressReports": {
      "type": ["object", "null"],
      "properties": {
        "data": {
          "type": ["array", "null"],
          "items": {
            "type": "object",
            "properties": {
              "reportNumber": {"$ref": "#/definitions/number"},
              "reportDate": {"$ref": "#/definitions/date"},
              "status": {"type": ["string", "null"]},
              "summary": {
                "type": ["object", "null"],
                "properties": {
                  "calculatedPercentCTD": {"$ref": "#/definitions/number"}
                }
              }
            }
          }
        }
      }
    },
    "forecasts": {
      "type": ["object", "null"],
      "properties": {
        "data": {
          "type": ["array", "null"],
          "items": {
            "type": "object",
            "properties": {
              "monthNumber": {"$ref": "#/definitions/number"},
              "status": {"type": ["string", "null"]},
              "summary": {
                "type": ["object", "null"],
                "properties": {
                  "marginAtCompletion": {"$ref": "#/definitions/number"},
                  "marginAtCompletionPercent": {"$ref": "#/definitions/number"}
                }
              }
            }
          }
        }
      }
    }
  }
}`

var bundleSchemaLoader = gojsonschema.NewStringLoader(bundleSchemaJSON)

// BundleSchema returns the JSON Schema that bundle documents must satisfy.
func BundleSchema() string { return bundleSchemaJSON }

// ValidateBundle checks a raw bundle document against the bundle schema.
// Validation failures wrap ErrInvalidBundle.
func ValidateBundle(doc []byte) error {
	result, err := gojsonschema.Validate(bundleSchemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	if result.Valid() {
		return nil
	}

	errs := make([]error, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, errors.New(desc.String()))
	}
	return fmt.Errorf("%w: %w", ErrInvalidBundle, errors.Join(errs...))
}

// DecodeBundle validates doc and decodes it into a bundle.
func DecodeBundle(doc []byte) (finance.FeedBundle, error) {
	if err := ValidateBundle(doc); err != nil {
		return finance.FeedBundle{}, err
	}
	var b finance.FeedBundle
	if err := json.Unmarshal(doc, &b); err != nil {
		return finance.FeedBundle{}, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	if b.Job != nil && b.Job.ID == "" {
		b.Job.ID = b.JobID
	}
	return b, nil
}
