package forecast

import (
	"time"

	"github.com/daxtrader54/mypredictify/internal/logger"
	"github.com/google/uuid"
)

// Mutation kinds recorded in the shared change log
const (
	ChangeRatingUpdate     = "rating_update"
	ChangeWeightAdjustment = "weight_adjustment"
	ChangeBiasCalibration  = "bias_calibration"
	ChangePrediction       = "prediction"
	ChangeEvaluation       = "evaluation"
)

// ChangeLogEntry is a single append-only audit record. Every mutation of
// derived state (ratings, weights, bias) lands here tagged by kind.
type ChangeLogEntry struct {
	ID        string    `json:"id" column:"id" dbtype:"TEXT" primary:"true"`
	Kind      string    `json:"kind" column:"kind" dbtype:"TEXT NOT NULL" index:"true"`
	Season    string    `json:"season" column:"season" dbtype:"TEXT" index:"true"`
	Period    string    `json:"period" column:"period" dbtype:"TEXT" index:"true"`
	Detail    string    `json:"detail" column:"detail" dbtype:"TEXT"`
	CreatedAt time.Time `json:"createdAt" column:"created_at" dbtype:"DATETIME"`
}

func (c *ChangeLogEntry) GetTableName() string {
	return "change_log"
}

func (c *ChangeLogEntry) GetPrimaryKey() map[string]any {
	return map[string]any{"id": c.ID}
}

func (c *ChangeLogEntry) BeforeSave() error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}

// AppendChange records a mutation in the change log. Failures here must
// never unwind the primary computation, so they are logged and dropped.
func AppendChange(kind, season, period, detail string) {
	entry := &ChangeLogEntry{
		Kind:   kind,
		Season: season,
		Period: period,
		Detail: detail,
	}
	if err := Save(entry); err != nil {
		logger.Warn("Failed to append change log entry", kind, err)
	}
}
