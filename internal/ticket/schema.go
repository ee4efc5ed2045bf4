package ticket

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/miradorstack/mirador-relay/internal/utils"
)

// summaryPattern is VERB [SOURCE] DETAIL.
var summaryPattern = regexp.MustCompile(`^\S+ \[[^\]]+\] .+$`)

var summaryValidate *validator.Validate

func init() {
	summaryValidate = validator.New()
	_ = summaryValidate.RegisterValidation("ticket_summary", func(fl validator.FieldLevel) bool {
		return summaryPattern.MatchString(fl.Field().String())
	})
}

type summaryInput struct {
	Summary string `validate:"required,max=255,ticket_summary"`
}

// ValidateSummary rejects titles that do not read "VERB [SOURCE] DETAIL". It performs no I/O.
func ValidateSummary(summary string) error {
	if err := summaryValidate.Struct(summaryInput{Summary: summary}); err != nil {
		return utils.NewAppError("ticket.ValidateSummary", fmt.Sprintf("summary %q must match VERB [SOURCE] DETAIL", summary), fmt.Errorf("%w: %v", utils.ErrSchemaViolation, err))
	}
	return nil
}
