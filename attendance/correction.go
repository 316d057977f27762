package attendance

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/schedule-engine/generic"
)

// CorrectionWindow is how long after a punch an employee may correct it
// without merchant review. It is a business rule, not configuration.
const CorrectionWindow = 24 * time.Hour

type CorrectionStatus string

const (
	CorrectionAutoApproved    CorrectionStatus = "auto_approved"
	CorrectionPendingMerchant CorrectionStatus = "pending_merchant_approval"
)

type CorrectionDecision struct {
	Status      CorrectionStatus `json:"status"`
	Punch       time.Time        `json:"punch"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Elapsed     string           `json:"elapsed"`
}

// Corrections decides how punch corrections are approved. The submission
// time is taken from the clock, never from the shift date.
type Corrections struct {
	clock  generic.Clock
	logger zerolog.Logger
}

func NewCorrections(clock generic.Clock, logger zerolog.Logger) *Corrections {
	return &Corrections{clock: clock, logger: logger.With().Str("component", "corrections").Logger()}
}

// Review decides a correction of the punch submitted now.
func (c *Corrections) Review(punch time.Time) (CorrectionDecision, error) {
	d, err := ReviewAt(punch, c.clock.Now())
	if err != nil {
		return d, err
	}
	c.logger.Debug().
		Time("punch", punch).
		Str("elapsed", d.Elapsed).
		Str("status", string(d.Status)).
		Msg("correction reviewed")
	return d, nil
}

// ReviewAt auto-approves when submitted - punch <= CorrectionWindow.
func ReviewAt(punch, submitted time.Time) (CorrectionDecision, error) {
	if punch.IsZero() {
		return CorrectionDecision{}, generic.Invalid("punch", "required")
	}
	elapsed := submitted.Sub(punch)
	if elapsed < 0 {
		return CorrectionDecision{}, generic.Invalid("punch", "punch %s is after the submission time", punch.Format(time.RFC3339))
	}
	d := CorrectionDecision{
		Status:      CorrectionPendingMerchant,
		Punch:       punch,
		SubmittedAt: submitted,
		Elapsed:     elapsed.String(),
	}
	if elapsed <= CorrectionWindow {
		d.Status = CorrectionAutoApproved
	}
	return d, nil
}
